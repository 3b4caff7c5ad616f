package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ohya-backend/api/middleware"
	"github.com/angelmondragon/ohya-backend/api/responses"
	"github.com/angelmondragon/ohya-backend/api/validators"
	internalorders "github.com/angelmondragon/ohya-backend/internal/orders"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
	"github.com/angelmondragon/ohya-backend/pkg/pagination"
)

const (
	proofField = "bankProof"
	// multipart envelope overhead on top of the proof size cap
	formOverheadBytes = 1 << 20
)

// MaxRequestBytes is the largest order body accepted for a proof size cap.
func MaxRequestBytes(maxProofBytes int64) int64 {
	return maxProofBytes + formOverheadBytes
}

// ProofOpener reads a stored proof back for admin review.
type ProofOpener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
}

type createOrderBody struct {
	Items           []internalorders.LineInput `json:"items"`
	Total           *decimal.Decimal           `json:"total"`
	ShippingName    string                     `json:"shippingName"`
	ShippingPhone   string                     `json:"shippingPhone"`
	ShippingAddress string                     `json:"shippingAddress"`
}

type updateStatusBody struct {
	Status string `json:"status" validate:"required"`
}

// Create places an order from a multipart form (with optional bankProof file)
// or from a JSON body without a proof.
func Create(svc internalorders.Service, maxProofBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var (
			input internalorders.CreateOrderInput
			err   error
		)
		if validators.IsMultipart(r) {
			if err := validators.ParseMultipart(w, r, MaxRequestBytes(maxProofBytes)); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			defer func() { _ = r.MultipartForm.RemoveAll() }()

			input, err = inputFromForm(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			defer validators.CloseFile(input.Proof)
		} else {
			var body createOrderBody
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input = internalorders.CreateOrderInput{
				Items: body.Items,
				Total: body.Total,
				Shipping: internalorders.ShippingInput{
					Name:    body.ShippingName,
					Phone:   body.ShippingPhone,
					Address: body.ShippingAddress,
				},
			}
		}

		result, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func inputFromForm(r *http.Request) (internalorders.CreateOrderInput, error) {
	input := internalorders.CreateOrderInput{
		Shipping: internalorders.ShippingInput{
			Name:    strings.TrimSpace(r.FormValue("shippingName")),
			Phone:   strings.TrimSpace(r.FormValue("shippingPhone")),
			Address: strings.TrimSpace(r.FormValue("shippingAddress")),
		},
	}

	if raw := strings.TrimSpace(r.FormValue("items")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.Items); err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order").
				WithDetails(map[string]any{"items": "must be a JSON array of {productId, quantity, price}"})
		}
	}

	if raw := strings.TrimSpace(r.FormValue("total")); raw != "" {
		total, err := decimal.NewFromString(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order").
				WithDetails(map[string]any{"total": "must be a decimal number"})
		}
		input.Total = &total
	}

	proof, err := validators.FormFile(r, proofField)
	if err != nil {
		return input, err
	}
	input.Proof = proof
	return input, nil
}

// List returns the caller's orders; admins see every order and may filter by userId.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := internalorders.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"status": raw}))
				return
			}
			params.Status = &status
		}

		userID, err := validators.ParseQueryID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.UserID = userID

		list, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order with its items.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParsePathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// UpdateStatus moves an order through its lifecycle.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParsePathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateStatusBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID)
		}
		status := enums.OrderStatus(strings.ToLower(strings.TrimSpace(body.Status)))
		order, err := svc.UpdateStatus(ctx, middleware.ActorFromContext(ctx), orderID, status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Delete removes an order and its items.
func Delete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParsePathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID)
		}
		if err := svc.Delete(ctx, middleware.ActorFromContext(ctx), orderID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": orderID, "deleted": true})
	}
}

// Proof streams the stored proof-of-payment file.
func Proof(svc internalorders.Service, files ProofOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || files == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParsePathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		ref, err := svc.ProofReference(ctx, middleware.ActorFromContext(ctx), orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		body, contentType, err := files.Open(ctx, ref)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(ref)))
		w.Header().Set("Cache-Control", "private, no-store")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil && logg != nil {
			logg.Error(ctx, "proof stream interrupted", err)
		}
	}
}
