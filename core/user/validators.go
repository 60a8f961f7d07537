package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

var (
	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"
	commonPasswords = make([]string, 0, 256)
)

// InitValidators registers the user validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(userStructValidation, NewUser{}, AdminPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords loads the gzipped list of common passwords found under assets/.
func LoadCommonPasswords(conf *core.Config, logger core.Logger) {
	pwdAssetPath := filepath.Join(conf.WorkDir, "assets", "common-passwords.txt.gz")
	file, err := os.Open(pwdAssetPath)
	if err != nil {
		logger.Warn(fmt.Sprintf("opening common passwords: %v", err))
		return
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		logger.Warn(fmt.Sprintf("reading common passwords: %v", err))
		return
	}
	pwds := make([]string, 0, cap(commonPasswords))
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	sort.Strings(pwds)
	commonPasswords = pwds
}

// userStructValidation does struct level validation on NewUser and AdminPassword structs.
func userStructValidation(sl validator.StructLevel) {
	switch v := sl.Current().Interface().(type) {
	case NewUser:
		validatePassword(v.Password, sl, v.Name, v.Username, v.Email)
	case AdminPassword:
		validatePassword(v.Password, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func validatePassword(pwd string, sl validator.StructLevel, attrs ...string) {
	if pwd == "" {
		return // reported by `required`
	}
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount                             int
		hasUpper, hasLower, hasDig, hasSpecial bool
	)

	pwdLen := len([]rune(pwd))
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	hasDig = digitCount > 0
	hasSpecial = specialRegex.MatchString(pwd)
	if !(hasUpper && hasLower && hasDig && hasSpecial) {
		reportErr(pwdComplexityTag)
		return
	}

	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(attr, "")).QuickRatio()
		if ratio >= pwdMaxSim {
			reportErr(pwdAttrSimTag)
			return
		}
	}

	lpwd := strings.ToLower(pwd)
	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) {
		if commonPasswords[idx] == lpwd {
			reportErr(pwdNoCommonTag)
		}
	}
}
