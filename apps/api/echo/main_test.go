package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/access"
	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/profile"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
	"github.com/caffeinepub/diploma-smart-study-hub/services/blob/memory"
	"github.com/caffeinepub/diploma-smart-study-hub/services/email"
	"github.com/caffeinepub/diploma-smart-study-hub/storage/database/inmem"
	"github.com/caffeinepub/diploma-smart-study-hub/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testApp is a Server backed by the in-memory repositories & fake gateways.
type testApp struct {
	*Server
	conf     *core.Config
	usrRepo  user.Repository
	subs     *subscription.Service
	payments *payment.Service
	stripe   *testutil.FakeStripe
	mailSvc  *emailsvc.ConsoleServiceMock
	blobs    *memblob.Store
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := testutil.Config()
	logger := testutil.Logger(conf)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	settingsRepo := inmemdb.NewSettingsRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	blobs := memblob.NewStore()
	stripe := testutil.NewFakeStripe()

	usrSvc := user.NewService(usrRepo, settingsRepo)
	subSvc := subscription.NewService(inmemdb.NewSubscriptionRepository(db))
	paySvc := payment.NewService(
		conf, logger,
		inmemdb.NewPaymentRepository(db), settingsRepo,
		subSvc, usrSvc,
		payment.Gateways{Stripe: stripe, Razorpay: new(testutil.FakeRazorpay)},
		mailSvc, nil,
	)

	srv := NewServer(ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		ProfileSvc:      profile.NewService(inmemdb.NewProfileRepository(db)),
		SubscriptionSvc: subSvc,
		PaymentSvc:      paySvc,
		WithdrawalSvc:   withdrawal.NewService(logger, inmemdb.NewWithdrawalRepository(db), usrSvc, mailSvc),
		GallerySvc:      gallery.NewService(conf.Storage, logger, inmemdb.NewGalleryRepository(db), blobs),
		LessonSvc:       lesson.NewService(conf.Storage, inmemdb.NewLessonRepository(db)),
		Access:          access.NewChecker(usrSvc, subSvc),
	})

	return &testApp{
		Server:   srv,
		conf:     conf,
		usrRepo:  usrRepo,
		subs:     subSvc,
		payments: paySvc,
		stripe:   stripe,
		mailSvc:  mailSvc,
		blobs:    blobs,
	}
}

func (app *testApp) createUser(t *testing.T, uname, pwd, role string, isActive bool) user.User {
	return testutil.CreateUser(t, app.usrRepo, uname, uname, uname+"@test.in", pwd, role, isActive)
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := app.auth.generateToken(app.auth.userClaims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

// subscribe activates the subscription of usr.
func (app *testApp) subscribe(t *testing.T, usr user.User) {
	if _, err := app.subs.Activate(context.Background(), usr.ID, subscription.SourceAdmin); err != nil {
		t.Fatalf("subscribe() failed: %v", err)
	}
}

func (app *testApp) run(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data []byte) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func unmarshalObj(t *testing.T, data []byte, obj interface{}) {
	if err := json.Unmarshal(data, obj); err != nil {
		t.Fatalf("unmarshalObj() failed: %v; data %s", err, data)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.run(t, tt))
		})
	}
}
