package validator

import (
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// Формат даты записей дневника
const IsoDate = "2006-01-02"

// Валидатор корректной ссылки на HTTP сервис
func validatorHttpUrl(fl validator.FieldLevel) bool {
	address, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	addr, err := url.Parse(address)
	if err != nil {
		return false
	}
	if addr.Scheme != "http" && addr.Scheme != "https" {
		return false
	}
	return addr.Host != ""
}

// Валидатор даты формата YYYY-MM-DD
func validatorIsoDate(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := time.Parse(IsoDate, date)
	return err == nil
}
