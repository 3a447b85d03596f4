// Package validate wires the fiscal field rules (CNPJ, CPF, CEP, CFOP, NCM,
// CST, CSOSN, UF) into go-playground/validator, both for standalone use and
// for gin request binding.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/model"
)

// TagName matches gin's binding tag so one set of struct tags serves both
const TagName = "binding"

var (
	cfopRE = regexp.MustCompile(`^[1-7]\d{3}$`)
	ncmRE  = regexp.MustCompile(`^\d{8}$`)
)

// ICMS CST codes for the normal regime (tabela B), without the origin digit
var icmsCST = map[string]bool{
	"00": true, "02": true, "10": true, "15": true, "20": true, "30": true,
	"40": true, "41": true, "50": true, "51": true, "53": true, "60": true,
	"61": true, "70": true, "90": true,
}

// CSOSN codes for Simples Nacional
var csosnCodes = map[string]bool{
	"101": true, "102": true, "103": true, "201": true, "202": true,
	"203": true, "300": true, "400": true, "500": true, "900": true,
}

// ValidCST accepts a 2-digit CST or a 3-digit origin+CST
func ValidCST(s string) bool {
	switch len(s) {
	case 2:
		return icmsCST[s]
	case 3:
		return s[0] >= '0' && s[0] <= '8' && icmsCST[s[1:]]
	}
	return false
}

// ValidCSOSN reports whether s is a CSOSN code
func ValidCSOSN(s string) bool {
	return csosnCodes[s]
}

// ValidCFOP reports whether s is a 4-digit CFOP with a valid leading group
func ValidCFOP(s string) bool {
	return cfopRE.MatchString(s)
}

// ValidNCM reports whether s is an 8-digit NCM
func ValidNCM(s string) bool {
	return ncmRE.MatchString(s)
}

func stringRule(fn func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String())
	}
}

func digitsRule(length int, fn func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(brdoc.OnlyDigits(s)) == length && fn(s)
	}
}

var rules = map[string]validator.Func{
	"cnpj":    digitsRule(14, brdoc.ValidCNPJ),
	"cpf":     digitsRule(11, brdoc.ValidCPF),
	"cpfcnpj": stringRule(brdoc.ValidCPFOrCNPJ),
	"cep":     stringRule(brdoc.ValidCEP),
	"cfop":    stringRule(ValidCFOP),
	"ncm":     stringRule(ValidNCM),
	"cst":     stringRule(ValidCST),
	"csosn":   stringRule(ValidCSOSN),
	"percent": percentRule,
	"uf": stringRule(func(s string) bool {
		_, ok := model.UFCode(s)
		return ok
	}),
}

// percentRule accepts 0..100 on numeric fields, including decimals
func percentRule(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		return f.Float() >= 0 && f.Float() <= 100
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return f.Int() >= 0 && f.Int() <= 100
	}
	return false
}

// decimalValue lets numeric tags (gte, lte, gt) apply to decimal.Decimal fields
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// Register installs the fiscal rules on v
func Register(v *validator.Validate) error {
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	return nil
}

var (
	once     sync.Once
	instance *validator.Validate
)

// Default returns the shared standalone validator
func Default() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.SetTagName(TagName)
		if err := Register(instance); err != nil {
			panic(err)
		}
	})
	return instance
}

var ginOnce sync.Once

// RegisterGin installs the fiscal rules on gin's binding validator
func RegisterGin() {
	ginOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := Register(v); err != nil {
				panic(err)
			}
		}
	})
}

// Struct validates s and converts the first failure into a model.ValidationError
func Struct(s interface{}) error {
	return FromError(Default().Struct(s))
}

// FromError converts validator errors into a model.ValidationError
func FromError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fe.Namespace(), fe.Value(), fe.Tag(), describe(fe))
	}
	return model.NewValidationError("request", nil, "format", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "cnpj", "cpf", "cpfcnpj":
		return "invalid check digits"
	case "percent":
		return "must be between 0 and 100"
	case "cep", "cfop", "ncm", "cst", "csosn", "uf":
		return "invalid " + fe.Tag() + " code"
	case "gte", "lte", "gt", "min", "max", "len":
		return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "failed " + fe.Tag()
}
