package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

const maxBodyBytes = 1 << 20

var validate = buildValidator()

// buildValidator reports fields by their json name and registers the
// marketplace-specific tags used on request DTOs.
func buildValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("item_status", func(fl validator.FieldLevel) bool {
		return enums.OrderItemStatus(fl.Field().String()).IsValid()
	})
	return v
}

var fieldMessages = map[string]func(validator.FieldError) string{
	"required":    func(validator.FieldError) string { return "is required" },
	"notblank":    func(validator.FieldError) string { return "must not be blank" },
	"min":         func(fe validator.FieldError) string { return "must be at least " + fe.Param() },
	"max":         func(fe validator.FieldError) string { return "must be at most " + fe.Param() },
	"oneof":       func(fe validator.FieldError) string { return "must be one of [" + fe.Param() + "]" },
	"uuid":        func(validator.FieldError) string { return "must be a valid uuid" },
	"url":         func(validator.FieldError) string { return "must be a valid url" },
	"item_status": func(validator.FieldError) string { return "is not a known order item status" },
}

// DecodeJSONBody reads exactly one JSON object (at most 1MB) into dest,
// rejecting unknown fields, then applies its validate tags.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	return Struct(dest)
}

// Struct runs validate tags on an already populated value.
func Struct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func describe(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Tag()]; ok {
		return msg(fe)
	}
	return "is invalid"
}
