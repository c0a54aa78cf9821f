package config

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags first, then the address rules tags cannot
// express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateAddresses(&cfg.Addresses); err != nil {
		return err
	}

	return nil
}

// validateAddresses requires every region to be seekable and the three
// regions to be distinct. The result page must not wrap the address space.
func validateAddresses(cfg *AddressConfig) error {
	regions := []struct {
		name string
		addr Address
	}{
		{"addresses.program_base", cfg.ProgramBase},
		{"addresses.reset_base", cfg.ResetBase},
		{"addresses.result_base", cfg.ResultBase},
	}

	seen := make(map[Address]string)
	for _, r := range regions {
		if uint64(r.addr) > math.MaxInt64 {
			return fmt.Errorf("%s: %s exceeds the largest seekable offset", r.name, r.addr)
		}
		if other, ok := seen[r.addr]; ok {
			return fmt.Errorf("%s: %s collides with %s", r.name, r.addr, other)
		}
		seen[r.addr] = r.name
	}

	if uint64(cfg.ResultBase) > math.MaxInt64-xdma.ResultPageSize {
		return fmt.Errorf("addresses.result_base: page at %s runs past the largest seekable offset", cfg.ResultBase)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
