package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var (
	countryCodePattern = regexp.MustCompile(`^\+[0-9]{1,4}$`)
	phoneDigitsPattern = regexp.MustCompile(`^[0-9]{4,15}$`)
)

type signupRequest struct {
	CountryCode string              `json:"countryCode" validate:"required,countrycode"`
	PhoneNumber string              `json:"phoneNumber" validate:"required,phonedigits"`
	Password    string              `json:"password" validate:"required,min=4,max=64"`
	Name        string              `json:"name" validate:"omitempty,max=64"`
	Email       string              `json:"email" validate:"omitempty,email"`
	Preferences *preferencesRequest `json:"preferences" validate:"omitempty"`
	InviteCode  string              `json:"inviteCode" validate:"omitempty,len=7,alphanum"`
}

type preferencesRequest struct {
	Language      string `json:"language" validate:"omitempty,max=16"`
	Currency      string `json:"currency" validate:"omitempty,max=8"`
	Timezone      string `json:"timezone" validate:"omitempty,max=64"`
	Notifications *bool  `json:"notifications"`
}

type loginRequest struct {
	CountryCode string `json:"countryCode" validate:"required,countrycode"`
	PhoneNumber string `json:"phoneNumber" validate:"required,phonedigits"`
	Password    string `json:"password" validate:"required,max=1024"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=4,max=64"`
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("countrycode", func(fl validator.FieldLevel) bool {
		return countryCodePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phonedigits", func(fl validator.FieldLevel) bool {
		return phoneDigitsPattern.MatchString(fl.Field().String())
	})
	return v
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
