package records

import (
	"github.com/go-playground/validator/v10"

	apperrors "tattoo-datasync/pkg/errors"
	"tattoo-datasync/pkg/utils"
)

func init() {
	v := utils.Validator()
	_ = v.RegisterValidation("tattoostyle", func(fl validator.FieldLevel) bool {
		_, ok := NormalizeStyle(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("entitytype", func(fl validator.FieldLevel) bool {
		return EntityType(fl.Field().String()).Valid()
	})
	v.RegisterStructValidation(validateRecord, Record{})
}

// validateRecord checks that the stored keys agree with type and id and
// that coordinates come in pairs. A lone coordinate cannot be indexed as a
// geo point, so its document would never fingerprint like the record.
func validateRecord(sl validator.StructLevel) {
	r := sl.Current().Interface().(Record)
	if (r.Latitude == nil) != (r.Longitude == nil) {
		if r.Latitude == nil {
			sl.ReportError(r.Latitude, "Latitude", "Latitude", "coordpair", "")
		} else {
			sl.ReportError(r.Longitude, "Longitude", "Longitude", "coordpair", "")
		}
	}
	if !r.EntityType.Valid() || r.ID == "" {
		return
	}
	want := KeyFor(r.EntityType, r.ID)
	if r.PK != want.PK {
		sl.ReportError(r.PK, "PK", "PK", "keymatch", "")
	}
	if r.SK != want.SK {
		sl.ReportError(r.SK, "SK", "SK", "keymatch", "")
	}
}

// Validate checks field constraints and key consistency. Styles are accepted
// when they normalize onto the vocabulary.
func (r *Record) Validate() error {
	if err := utils.ValidateStruct(r); err != nil {
		return apperrors.NewValidationError(err.Error()).
			WithCode(apperrors.CodeInvalidRecord).
			WithDetails(map[string]interface{}{"pk": r.PK, "sk": r.SK})
	}
	return nil
}
