package users

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/memtensor/memchat/pkg/errors"
)

// PasswordPolicyMessage is returned for any password that fails the strength rules
const PasswordPolicyMessage = "Password must have at least 8 characters, including uppercase, lowercase, number and special character"

const passwordSymbols = "@$!%*?&"

// RegisterInput is the body of a registration or superadmin add-user request
type RegisterInput struct {
	Name     string `json:"name" form:"name" validate:"required,min=3,max=50"`
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required,password"`
	Age      *int   `json:"age,omitempty" form:"age" validate:"omitempty,min=1,max=120"`
	Phone    string `json:"phone,omitempty" form:"phone" validate:"omitempty,min=10,max=15"`
	Address  string `json:"address,omitempty" form:"address" validate:"omitempty,max=100"`
	City     string `json:"city,omitempty" form:"city" validate:"omitempty,max=50"`
	Country  string `json:"country,omitempty" form:"country" validate:"omitempty,max=50"`
	ZipCode  string `json:"zipCode,omitempty" form:"zipCode" validate:"omitempty,max=20"`
	Role     string `json:"role,omitempty" form:"role" validate:"omitempty,oneof=user admin superadmin"`
}

// LoginInput is the body of a login request
type LoginInput struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// UpdateInput is a sparse user patch; nil fields are left unchanged
type UpdateInput struct {
	Name         *string `json:"name,omitempty" validate:"omitnil,min=3,max=50"`
	Email        *string `json:"email,omitempty" validate:"omitnil,email"`
	Password     *string `json:"password,omitempty" validate:"omitnil,password"`
	Age          *int    `json:"age,omitempty" validate:"omitnil,min=1,max=120"`
	Phone        *string `json:"phone,omitempty" validate:"omitnil,phone"`
	Address      *string `json:"address,omitempty" validate:"omitempty,max=100"`
	City         *string `json:"city,omitempty" validate:"omitempty,max=50"`
	Country      *string `json:"country,omitempty" validate:"omitempty,max=50"`
	ZipCode      *string `json:"zipCode,omitempty" validate:"omitempty,max=20"`
	ProfileImage *string `json:"profileImage,omitempty"`
	Role         *string `json:"role,omitempty" validate:"omitnil,oneof=user admin superadmin"`

	// Unknown holds submitted field names that are not user attributes
	Unknown []string `json:"-"`
}

// Fields returns the names of the fields set in the patch, unknown ones included
func (in *UpdateInput) Fields() []string {
	var fields []string
	add := func(name string, set bool) {
		if set {
			fields = append(fields, name)
		}
	}
	add(FieldName, in.Name != nil)
	add(FieldEmail, in.Email != nil)
	add(FieldPassword, in.Password != nil)
	add(FieldAge, in.Age != nil)
	add(FieldPhone, in.Phone != nil)
	add(FieldAddress, in.Address != nil)
	add(FieldCity, in.City != nil)
	add(FieldCountry, in.Country != nil)
	add(FieldZipCode, in.ZipCode != nil)
	add(FieldProfileImage, in.ProfileImage != nil)
	add(FieldRole, in.Role != nil)
	return append(fields, in.Unknown...)
}

// Updatable user attributes, named as they appear in JSON
const (
	FieldName         = "name"
	FieldEmail        = "email"
	FieldPassword     = "password"
	FieldAge          = "age"
	FieldPhone        = "phone"
	FieldAddress      = "address"
	FieldCity         = "city"
	FieldCountry      = "country"
	FieldZipCode      = "zipCode"
	FieldProfileImage = "profileImage"
	FieldRole         = "role"
)

// NewUpdateInput builds a patch from decoded JSON or multipart form values.
// Strings are accepted for age so form posts work.
func NewUpdateInput(values map[string]interface{}) (*UpdateInput, error) {
	in := &UpdateInput{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := values[key]
		var target **string
		switch key {
		case FieldName:
			target = &in.Name
		case FieldEmail:
			target = &in.Email
		case FieldPassword:
			target = &in.Password
		case FieldPhone:
			target = &in.Phone
		case FieldAddress:
			target = &in.Address
		case FieldCity:
			target = &in.City
		case FieldCountry:
			target = &in.Country
		case FieldZipCode:
			target = &in.ZipCode
		case FieldProfileImage:
			target = &in.ProfileImage
		case FieldRole:
			target = &in.Role
		case FieldAge:
			age, err := toInt(raw)
			if err != nil {
				return nil, errors.NewValidationError(fmt.Sprintf("%q must be a number", key))
			}
			in.Age = &age
			continue
		default:
			in.Unknown = append(in.Unknown, key)
			continue
		}

		s, ok := raw.(string)
		if !ok {
			return nil, errors.NewValidationError(fmt.Sprintf("%q must be a string", key))
		}
		*target = &s
	}

	return in, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	case int:
		return n, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// IsStrongPassword reports whether the password meets the strength rules
func IsStrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	return containsLowercase(password) && containsUppercase(password) &&
		containsNumber(password) && strings.ContainsAny(password, passwordSymbols)
}

func containsUppercase(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func containsLowercase(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}

func containsNumber(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

const (
	minPhoneLength = 10
	maxPhoneLength = 15
)

// newValidator builds the request validator with JSON field names and the password rule
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	})
	// an empty phone clears the stored number
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		n := utf8.RuneCountInString(fl.Field().String())
		return n == 0 || (n >= minPhoneLength && n <= maxPhoneLength)
	})
	return v
}

// validateStruct runs the validator and converts the first failure into a
// validation error with a readable message
func validateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return errors.NewValidationError(err.Error())
	}

	fe := fieldErrors[0]
	return errors.NewValidationError(validationMessage(fe)).WithDetail("field", fe.Field())
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	isString := fe.Kind() == reflect.String

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "password":
		return PasswordPolicyMessage
	case "phone":
		if s, _ := fe.Value().(string); utf8.RuneCountInString(s) < minPhoneLength {
			return fmt.Sprintf("%q length must be at least %d characters long", field, minPhoneLength)
		}
		return fmt.Sprintf("%q length must be less than or equal to %d characters long", field, maxPhoneLength)
	case "min":
		if isString {
			return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be greater than or equal to %s", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%q must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}
