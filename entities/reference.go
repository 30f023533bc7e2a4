package entities

import "github.com/jacentio/refguard/dao"

// Reference data types carry no unique field.
const (
	TypeCurrency = "currency"
	TypeLanguage = "language"
	TypeSetting  = "setting"
)

// Currency is a supported currency.
type Currency struct {
	Code   string `json:"code" yaml:"code"`
	Symbol string `json:"symbol" yaml:"symbol"`
}

type CurrencyPatch struct {
	Code   *string `json:"code,omitempty"`
	Symbol *string `json:"symbol,omitempty"`
}

func (p CurrencyPatch) Apply(doc *Currency) error {
	set(&doc.Code, p.Code)
	set(&doc.Symbol, p.Symbol)
	return nil
}

// Language is a supported UI language.
type Language struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

type LanguagePatch struct {
	Code *string `json:"code,omitempty"`
	Name *string `json:"name,omitempty"`
}

func (p LanguagePatch) Apply(doc *Language) error {
	set(&doc.Code, p.Code)
	set(&doc.Name, p.Name)
	return nil
}

// Setting holds account-wide preferences.
type Setting struct {
	Language       string `json:"language" yaml:"language"`
	CurrencyCode   string `json:"currencyCode" yaml:"currencyCode"`
	CurrencySymbol string `json:"currencySymbol" yaml:"currencySymbol"`
	Avatar         string `json:"avatar,omitempty" yaml:"avatar"`
	AdminEmail     string `json:"adminEmail,omitempty" yaml:"adminEmail"`
}

type SettingPatch struct {
	Language       *string `json:"language,omitempty"`
	CurrencyCode   *string `json:"currencyCode,omitempty"`
	CurrencySymbol *string `json:"currencySymbol,omitempty"`
	Avatar         *string `json:"avatar,omitempty"`
	AdminEmail     *string `json:"adminEmail,omitempty"`
}

func (p SettingPatch) Apply(doc *Setting) error {
	set(&doc.Language, p.Language)
	set(&doc.CurrencyCode, p.CurrencyCode)
	set(&doc.CurrencySymbol, p.CurrencySymbol)
	set(&doc.Avatar, p.Avatar)
	set(&doc.AdminEmail, p.AdminEmail)
	return nil
}

var (
	CurrencySchema = dao.Schema[Currency]{
		Type:        TypeCurrency,
		DecodePatch: decodePatch[Currency, CurrencyPatch],
	}
	LanguageSchema = dao.Schema[Language]{
		Type:        TypeLanguage,
		DecodePatch: decodePatch[Language, LanguagePatch],
	}
	SettingSchema = dao.Schema[Setting]{
		Type:        TypeSetting,
		DecodePatch: decodePatch[Setting, SettingPatch],
	}
)
