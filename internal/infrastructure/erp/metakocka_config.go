package erp

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// MetakockaProductionAPIURL is the live REST endpoint
	MetakockaProductionAPIURL = "https://main.metakocka.si/rest/eshop/v1/json/"
	// MetakockaDevelopmentAPIURL is the test company endpoint
	MetakockaDevelopmentAPIURL = "https://devmainsi.metakocka.si/rest/eshop/v1/json/"

	// DefaultWarehouseID is the main warehouse stock is read from
	DefaultWarehouseID = "626700000004"

	// StockPageSize is the page size of the warehouse_stock endpoint
	StockPageSize = 1000
)

// ErrInvalidConfig is returned by NewMetakockaClient for unusable settings.
var ErrInvalidConfig = errors.New("metakocka: invalid configuration")

// MetakockaConfig holds credentials and client behavior for the Metakocka API
type MetakockaConfig struct {
	BaseURL     string `validate:"required,url"`
	SecretKey   string `validate:"required"`
	CompanyID   string `validate:"required"`
	WarehouseID string `validate:"required"`
	// ActivePricelists is the allow-list of pricelist titles copied onto products
	ActivePricelists []string      `validate:"dive,required"`
	Timeout          time.Duration `validate:"gte=0"`
	MaxRetries       int           `validate:"gte=0,lte=10"`
	// RequestsPerSecond limits outgoing calls, 0 disables the limit
	RequestsPerSecond float64 `validate:"gte=0"`
	// RetryInitialInterval is the first backoff delay, 500ms when zero
	RetryInitialInterval time.Duration `validate:"gte=0"`
}

// NewMetakockaConfig returns a development configuration with defaults
func NewMetakockaConfig(secretKey, companyID string) MetakockaConfig {
	return MetakockaConfig{
		BaseURL:     MetakockaDevelopmentAPIURL,
		SecretKey:   secretKey,
		CompanyID:   companyID,
		WarehouseID: DefaultWarehouseID,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration
func (c MetakockaConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
