package cms

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	errBlank    = validation.NewError("required", "This field may not be blank.")
	errRequired = errors.New("This field is required.")
	errNotNull  = errors.New("This field may not be null.")
	errNoFile   = errors.New("No file was submitted.")
)

func titleRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.ErrorObject(errBlank),
		validation.RuneLength(1, MaxTitleLength).Error("Ensure this field has no more than 220 characters."),
	}
}

func statusRule(allowed ...Status) validation.Rule {
	values := make([]interface{}, len(allowed))
	for i, s := range allowed {
		values[i] = s
	}
	return validation.In(values...).Error("is not a valid choice.")
}

func (s *service) validateBlog(b *Blog) error {
	err := validation.ValidateStruct(b,
		validation.Field(&b.Title, titleRules()...),
		validation.Field(&b.Status, validation.Required, statusRule(StatusDraft, StatusPublished)),
		validation.Field(&b.Slug, validation.RuneLength(0, MaxSlugLength)),
		validation.Field(&b.Body, validation.By(func(value interface{}) error {
			return s.body.Validate(b.Body)
		})),
	)
	return AsValidationError(err)
}

func validateResearch(r *Research) error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Title, titleRules()...),
		validation.Field(&r.Status, validation.Required, statusRule(StatusDraft, StatusInReview, StatusPublished)),
		validation.Field(&r.Slug, validation.RuneLength(0, MaxSlugLength)),
	)
	return AsValidationError(err)
}

func validateImage(img *Image) error {
	err := validation.ValidateStruct(img,
		validation.Field(&img.AltText, validation.RuneLength(0, MaxAltTextLength).Error("Ensure this field has no more than 255 characters.")),
	)
	return AsValidationError(err)
}

// mergeFieldErrors folds extra field errors into a validation result.
func mergeFieldErrors(err error, extra validation.Errors) error {
	if len(extra) == 0 {
		return err
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		for k, v := range extra {
			if _, exists := verr.Fields[k]; !exists {
				verr.Fields[k] = v
			}
		}
		return verr
	}
	if err != nil {
		return err
	}
	return &ValidationError{Fields: extra}
}
