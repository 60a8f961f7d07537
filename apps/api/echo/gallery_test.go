package echoapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

func newUploadRequest(t *testing.T, path, token string, files map[string][]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := w.CreateFormFile(uploadFormField, name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func Test_galleryApi(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "student", "", "", true)
	subscriber := app.createUser(t, "subscriber", "", "", true)
	app.subscribe(t, subscriber)
	admin := app.createUser(t, "admin", "", user.RoleAdmin, true)
	adminToken := app.token(t, admin)

	// create
	rec := app.run(t, httpTest{
		method: http.MethodPost, path: "/v1/galleries", token: app.token(t, usr),
		body: []byte(`{"title": "Circuits", "branch": "EEE", "semester": "3"}`),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.run(t, httpTest{method: http.MethodPost, path: "/v1/galleries", token: adminToken, body: []byte(`{"title": ""}`)})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.run(t, httpTest{
		method: http.MethodPost, path: "/v1/galleries", token: adminToken,
		body: []byte(`{"title": " Circuits ", "branch": "EEE", "semester": "3"}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var g gallery.Gallery
	unmarshalObj(t, rec.Body.Bytes(), &g)
	assert.Equal(t, "Circuits", g.Title)

	// upload
	req, rec := newUploadRequest(t, "/v1/galleries/"+g.ID+"/images", adminToken, map[string][]byte{"board.png": []byte("png-data")})
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var images []gallery.Media
	unmarshalObj(t, rec.Body.Bytes(), &images)
	require.Len(t, images, 1)
	img := images[0]
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, "/v1/galleries/"+g.ID+"/media/"+img.ID, img.URL)

	req, rec = newUploadRequest(t, "/v1/galleries/"+g.ID+"/videos", adminToken, map[string][]byte{"board.png": []byte("png-data")})
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "an image is not a video")

	req, rec = newUploadRequest(t, "/v1/galleries/"+g.ID+"/videos", adminToken, map[string][]byte{"intro.mp4": make([]byte, 3<<20)})
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "video too large")

	req, rec = newUploadRequest(t, "/v1/galleries/"+g.ID+"/videos", adminToken, map[string][]byte{"intro.mp4": []byte("mp4-data")})
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var videos []gallery.Media
	unmarshalObj(t, rec.Body.Bytes(), &videos)
	require.Len(t, videos, 1)

	// listing: locked without access
	t.Run("locked listing", func(t *testing.T) {
		for _, token := range []string{"", app.token(t, usr)} {
			rec := app.run(t, httpTest{path: "/v1/galleries?branch=EEE", token: token})
			require.Equal(t, http.StatusOK, rec.Code)
			var galleries []gallery.Gallery
			unmarshalObj(t, rec.Body.Bytes(), &galleries)
			require.Len(t, galleries, 1)
			assert.True(t, galleries[0].Locked)
			assert.Empty(t, galleries[0].Images)
			assert.Empty(t, galleries[0].Videos)
		}
	})

	t.Run("unlocked listing", func(t *testing.T) {
		for _, token := range []string{app.token(t, subscriber), adminToken} {
			rec := app.run(t, httpTest{path: "/v1/galleries?branch=EEE&semester=3", token: token})
			require.Equal(t, http.StatusOK, rec.Code)
			var galleries []gallery.Gallery
			unmarshalObj(t, rec.Body.Bytes(), &galleries)
			require.Len(t, galleries, 1)
			assert.False(t, galleries[0].Locked)
			assert.Len(t, galleries[0].Images, 1)
			assert.Len(t, galleries[0].Videos, 1)
			assert.Equal(t, img.URL, galleries[0].Images[0].URL)
		}
	})

	t.Run("other category", func(t *testing.T) {
		rec := app.run(t, httpTest{path: "/v1/galleries?branch=CSE", token: adminToken})
		checkCodeAndData(t, httpTest{wantData: []byte(`[]`)}, rec)
	})

	subscribePrompt := marshalObj(t, map[string]interface{}{
		"error":     "subscription required",
		"subscribe": SubscribePrompt{Message: "Subscribe to unlock this content.", PlansURL: "/v1/payments/plans"},
	})
	tests := []httpTest{
		{name: "detail: guest", path: "/v1/galleries/" + g.ID, wantCode: http.StatusUnauthorized},
		{name: "detail: not subscribed", path: "/v1/galleries/" + g.ID, token: app.token(t, usr), wantCode: http.StatusPaymentRequired, wantData: subscribePrompt},
		{name: "detail: unknown", path: "/v1/galleries/lol", token: app.token(t, subscriber), wantCode: http.StatusNotFound},
		{name: "videos: not subscribed", path: "/v1/galleries/" + g.ID + "/videos", token: app.token(t, usr), wantCode: http.StatusPaymentRequired},
		{name: "videos", path: "/v1/galleries/" + g.ID + "/videos", token: app.token(t, subscriber), wantData: marshalObj(t, videos)},
		{name: "media: guest", path: img.URL, wantCode: http.StatusUnauthorized},
		{name: "media: not subscribed", path: img.URL, token: app.token(t, usr), wantCode: http.StatusPaymentRequired},
		{name: "media: unknown", path: "/v1/galleries/" + g.ID + "/media/lol", token: app.token(t, subscriber), wantCode: http.StatusNotFound},
		{
			name: "delete image as video", method: http.MethodDelete, path: "/v1/galleries/" + g.ID + "/videos/" + img.ID,
			token: adminToken, wantCode: http.StatusNotFound,
		},
	}
	runTests(t, app, tests)

	t.Run("media", func(t *testing.T) {
		rec := app.run(t, httpTest{path: img.URL, token: app.token(t, subscriber)})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "png-data", rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.run(t, httpTest{method: http.MethodDelete, path: "/v1/galleries/" + g.ID + "/images/" + img.ID, token: adminToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = app.run(t, httpTest{path: img.URL, token: adminToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.run(t, httpTest{method: http.MethodDelete, path: "/v1/galleries/" + g.ID, token: adminToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, app.blobs.Keys(), "blobs are deleted along with the gallery")

		rec = app.run(t, httpTest{path: "/v1/galleries/" + g.ID, token: adminToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
