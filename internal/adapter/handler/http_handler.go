package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const headerIdempotencyKey = "Idempotency-Key"

type Services struct {
	Cart      *service.CartService
	Checkout  *service.CheckoutService
	Orders    *service.OrderService
	Customers *service.CustomerService
	Catalog   *service.CatalogService
}

type HTTPHandler struct {
	svc     Services
	auth    port.Authenticator
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type AddToCartHTTPRequest struct {
	CustomerID string `json:"customerId"`
	ItemID     string `json:"itemId"`
	Quantity   int    `json:"quantity"`
}

type RemoveFromCartHTTPRequest struct {
	CustomerID string `json:"customerId"`
	ItemID     string `json:"itemId"`
}

type CheckoutHTTPRequest struct {
	CustomerID string `json:"customerId"`
}

type UpdateProfileHTTPRequest struct {
	CustomerID string  `json:"customerId"`
	Name       *string `json:"name"`
	Phone      *string `json:"phone"`
	Address    *string `json:"address"`
}

type MessageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type CartResponse struct {
	Message string `json:"message,omitempty"`
	Cart    any    `json:"cart"`
}

type OrderResponse struct {
	Order *domain.Order `json:"order"`
}

func NewHTTPHandler(svc Services, auth port.Authenticator, logger *zap.Logger, m *metrics.Metrics) *HTTPHandler {
	if auth == nil {
		auth = HeaderAuthenticator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{svc: svc, auth: auth, logger: logger.With(zap.String("component", "http_server")), metrics: m}
}

// Routes registers every endpoint on a new mux, each wrapped in the
// observability middleware.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	h.handle(mux, "GET /health", h.HealthCheck)

	h.handle(mux, "GET /shop-items", h.ListItems)
	h.handle(mux, "GET /shop-items/{itemId}", h.GetItem)

	h.handle(mux, "GET /customer/cart/{customerId}", h.GetCart)
	h.handle(mux, "POST /customer/cart", h.AddToCart)
	h.handle(mux, "PUT /customer/cart", h.RemoveFromCart)
	h.handle(mux, "DELETE /customer/cart", h.RemoveFromCart)

	h.handle(mux, "POST /customer/checkout", h.Checkout)
	h.handle(mux, "GET /customer/orders", h.GetOrders)
	h.handle(mux, "GET /customer/orders/{customerId}", h.GetOrders)

	h.handle(mux, "GET /customer/profile/{customerId}", h.GetProfile)
	h.handle(mux, "PUT /customer/profile", h.UpdateProfile)

	return mux
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Catalog.ListItems(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.ShopItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Catalog.GetItem(r.Context(), r.PathValue("itemId"))
	if errors.Is(err, domain.ErrInvalidReference) {
		writeJSON(w, http.StatusNotFound, MessageResponse{Message: err.Error()})
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customerID(w, r, r.PathValue("customerId"))
	if !ok {
		return
	}

	if r.URL.Query().Get("expand") == "items" {
		lines, err := h.svc.Cart.GetCartDetails(r.Context(), customerID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CartResponse{Cart: lines})
		return
	}

	cart, err := h.svc.Cart.GetCart(r.Context(), customerID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CartResponse{Cart: cart})
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartHTTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customerID, ok := h.customerID(w, r, req.CustomerID)
	if !ok {
		return
	}
	if req.ItemID == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "missing required fields"})
		return
	}

	cart, err := h.svc.Cart.AddToCart(r.Context(), customerID, req.ItemID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CartResponse{Message: "Item added to cart", Cart: cart})
}

func (h *HTTPHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req RemoveFromCartHTTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customerID, ok := h.customerID(w, r, req.CustomerID)
	if !ok {
		return
	}
	if req.ItemID == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "missing required fields"})
		return
	}

	if _, err := h.svc.Cart.RemoveFromCart(r.Context(), customerID, req.ItemID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Cart updated successfully"})
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutHTTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customerID, ok := h.customerID(w, r, req.CustomerID)
	if !ok {
		return
	}

	order, err := h.svc.Checkout.Checkout(r.Context(), customerID, r.Header.Get(headerIdempotencyKey))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, OrderResponse{Order: order})
}

func (h *HTTPHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	claimed := r.PathValue("customerId")
	if claimed == "" {
		claimed = r.URL.Query().Get("customerId")
	}
	customerID, ok := h.customerID(w, r, claimed)
	if !ok {
		return
	}

	orders, err := h.svc.Orders.GetCustomerOrders(r.Context(), customerID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HTTPHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customerID(w, r, r.PathValue("customerId"))
	if !ok {
		return
	}

	customer, err := h.svc.Customers.GetProfile(r.Context(), customerID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *HTTPHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileHTTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customerID, ok := h.customerID(w, r, req.CustomerID)
	if !ok {
		return
	}

	customer, err := h.svc.Customers.UpdateProfile(r.Context(), customerID, domain.Profile{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

// customerID settles which customer the request acts for. When the caller
// presents credentials they win, and a different customer ID in the request
// is refused.
func (h *HTTPHandler) customerID(w http.ResponseWriter, r *http.Request, claimed string) (string, bool) {
	creds, present := credentialsFrom(r)
	if !present {
		if claimed == "" {
			writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "customerId is required"})
			return "", false
		}
		return claimed, true
	}

	id, err := h.auth.Authenticate(r.Context(), creds)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, MessageResponse{Message: "unauthenticated"})
		return "", false
	}
	if claimed != "" && claimed != id {
		writeJSON(w, http.StatusForbidden, MessageResponse{Message: "customer mismatch"})
		return "", false
	}
	return id, true
}

func (h *HTTPHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request_failed", zap.Error(err))
		writeJSON(w, status, MessageResponse{Message: message, Error: err.Error()})
		return
	}
	writeJSON(w, status, MessageResponse{Message: message})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrItemNotInCart):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrCheckoutInProgress):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
