package routes

import (
	"log"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"luxe-escrow-server/utils"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags used by request structs.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			log.Println("⚠️ Gin validator engine is not go-playground/validator, custom tags unavailable")
			return
		}
		// Report JSON names so binding errors match the request fields.
		v.RegisterTagNameFunc(jsonFieldName)
		if err := v.RegisterValidation("currency", validateCurrency); err != nil {
			log.Printf("❌ Failed to register currency validator: %v", err)
		}
	})
}

func jsonFieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return fld.Name
}

func validateCurrency(fl validator.FieldLevel) bool {
	return utils.IsCurrencyCode(fl.Field().String())
}
