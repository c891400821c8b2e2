package member

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mydasteran/portal/internal/datasvc"
)

type Address struct {
	ID            string
	Label         string
	RecipientName string
	Phone         string
	Line1         string
	Kecamatan     string
	City          string
	Province      string
	PostalCode    string
	IsDefault     bool
	CreatedAt     time.Time
}

// AddressInput is the address form. Kecamatan is optional.
type AddressInput struct {
	Label         string `schema:"label" validate:"required,max=50"`
	RecipientName string `schema:"recipient_name" validate:"required,max=100"`
	Phone         string `schema:"phone_number" validate:"required,max=20"`
	Line1         string `schema:"address_line1" validate:"required,max=255"`
	Kecamatan     string `schema:"kecamatan" validate:"max=100"`
	City          string `schema:"city" validate:"required,max=100"`
	Province      string `schema:"province" validate:"required,max=100"`
	PostalCode    string `schema:"postal_code" validate:"required,numeric,max=10"`
	IsDefault     bool   `schema:"is_default"`
}

func (in AddressInput) trimmed() AddressInput {
	in.Label = strings.TrimSpace(in.Label)
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Line1 = strings.TrimSpace(in.Line1)
	in.Kecamatan = strings.TrimSpace(in.Kecamatan)
	in.City = strings.TrimSpace(in.City)
	in.Province = strings.TrimSpace(in.Province)
	in.PostalCode = strings.TrimSpace(in.PostalCode)
	return in
}

func (in AddressInput) record() datasvc.Record {
	rec := datasvc.Record{
		"label":          in.Label,
		"recipient_name": in.RecipientName,
		"phone_number":   in.Phone,
		"address_line1":  in.Line1,
		"kecamatan":      nil,
		"city":           in.City,
		"province":       in.Province,
		"postal_code":    in.PostalCode,
		"is_default":     in.IsDefault,
	}
	if in.Kecamatan != "" {
		rec["kecamatan"] = in.Kecamatan
	}
	return rec
}

// Addresses lists the customer's addresses, default first then newest.
func (s *Service) Addresses(ctx context.Context, customerID string) ([]Address, error) {
	recs, err := s.data.Select(ctx, datasvc.TableShippingAddresses, datasvc.Query{
		Filters: []datasvc.Condition{datasvc.Eq("customer_id", customerID)},
		Order:   []datasvc.Order{datasvc.Desc("is_default"), datasvc.Desc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("select addresses: %w", err)
	}

	out := make([]Address, 0, len(recs))
	for _, r := range recs {
		a := Address{
			ID:            r.String("id"),
			Label:         r.String("label"),
			RecipientName: r.String("recipient_name"),
			Phone:         r.String("phone_number"),
			Line1:         r.String("address_line1"),
			Kecamatan:     r.String("kecamatan"),
			City:          r.String("city"),
			Province:      r.String("province"),
			PostalCode:    r.String("postal_code"),
			IsDefault:     r.Bool("is_default"),
		}
		a.CreatedAt, _ = s.parseTime(r, "created_at")
		out = append(out, a)
	}
	return out, nil
}

// ValidateAddress trims and validates in. Failures are
// validator.ValidationErrors.
func (s *Service) ValidateAddress(in AddressInput) (AddressInput, error) {
	in = in.trimmed()
	if err := s.validate.Struct(in); err != nil {
		return in, err
	}
	return in, nil
}

// AddAddress stores a new address. A default address clears the flag on the
// customer's other addresses first.
func (s *Service) AddAddress(ctx context.Context, customerID string, in AddressInput) (Address, error) {
	in, err := s.ValidateAddress(in)
	if err != nil {
		return Address{}, err
	}

	if in.IsDefault {
		if err := s.clearDefault(ctx, customerID); err != nil {
			return Address{}, err
		}
	}

	rec := in.record()
	rec["customer_id"] = customerID
	rec["created_at"] = datasvc.Timestamp(s.now())
	stored, err := s.data.Insert(ctx, datasvc.TableShippingAddresses, rec)
	if err != nil {
		return Address{}, fmt.Errorf("insert address: %w", err)
	}
	return s.address(ctx, customerID, stored.String("id"))
}

func (s *Service) UpdateAddress(ctx context.Context, customerID, addressID string, in AddressInput) (Address, error) {
	if _, err := s.address(ctx, customerID, addressID); err != nil {
		return Address{}, err
	}
	in, err := s.ValidateAddress(in)
	if err != nil {
		return Address{}, err
	}

	if in.IsDefault {
		if err := s.clearDefault(ctx, customerID); err != nil {
			return Address{}, err
		}
	}

	patch := in.record()
	patch["updated_at"] = datasvc.Timestamp(s.now())
	if _, err := s.data.Update(ctx, datasvc.TableShippingAddresses, ownAddress(customerID, addressID), patch); err != nil {
		return Address{}, fmt.Errorf("update address: %w", err)
	}
	return s.address(ctx, customerID, addressID)
}

func (s *Service) DeleteAddress(ctx context.Context, customerID, addressID string) error {
	n, err := s.data.Delete(ctx, datasvc.TableShippingAddresses, ownAddress(customerID, addressID))
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if n == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func (s *Service) SetDefaultAddress(ctx context.Context, customerID, addressID string) error {
	if _, err := s.address(ctx, customerID, addressID); err != nil {
		return err
	}
	if err := s.clearDefault(ctx, customerID); err != nil {
		return err
	}
	patch := datasvc.Record{"is_default": true, "updated_at": datasvc.Timestamp(s.now())}
	if _, err := s.data.Update(ctx, datasvc.TableShippingAddresses, ownAddress(customerID, addressID), patch); err != nil {
		return fmt.Errorf("set default address: %w", err)
	}
	return nil
}

func (s *Service) address(ctx context.Context, customerID, addressID string) (Address, error) {
	all, err := s.Addresses(ctx, customerID)
	if err != nil {
		return Address{}, err
	}
	for _, a := range all {
		if a.ID == addressID {
			return a, nil
		}
	}
	return Address{}, ErrAddressNotFound
}

func (s *Service) clearDefault(ctx context.Context, customerID string) error {
	_, err := s.data.Update(ctx, datasvc.TableShippingAddresses,
		[]datasvc.Condition{datasvc.Eq("customer_id", customerID)},
		datasvc.Record{"is_default": false},
	)
	if err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}

func ownAddress(customerID, addressID string) []datasvc.Condition {
	return []datasvc.Condition{
		datasvc.Eq("id", addressID),
		datasvc.Eq("customer_id", customerID),
	}
}

// IsNotFound reports whether err means the requested member record does not
// exist or belongs to someone else.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) || errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrAddressNotFound)
}
