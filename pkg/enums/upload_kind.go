package enums

import "fmt"

// UploadKind defines what an uploaded file is used for.
type UploadKind string

const (
	UploadKindProductImage UploadKind = "product_image"
	UploadKindPaymentProof UploadKind = "payment_proof"
)

var validUploadKinds = []UploadKind{
	UploadKindProductImage,
	UploadKindPaymentProof,
}

// String returns the literal string for the kind.
func (k UploadKind) String() string {
	return string(k)
}

// IsValid reports whether the kind is known.
func (k UploadKind) IsValid() bool {
	for _, candidate := range validUploadKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Dir returns the storage partition for files of this kind.
func (k UploadKind) Dir() string {
	switch k {
	case UploadKindProductImage:
		return "products"
	case UploadKindPaymentProof:
		return "payments"
	default:
		return "misc"
	}
}

// ParseUploadKind converts raw input into an UploadKind.
func ParseUploadKind(value string) (UploadKind, error) {
	for _, candidate := range validUploadKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upload kind %q", value)
}
