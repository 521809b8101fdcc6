package inventory

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Warehouse/pkg/kit"
)

type Server struct {
	Service *Service
	Log     *zap.Logger

	// WriteLimiter, when set, throttles the mutating routes.
	WriteLimiter *kit.IPRateLimiter
}

type addReq struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

type adjustReq struct {
	Delta string `json:"delta"`
}

type messageResp struct {
	Message string   `json:"message"`
	Product *Product `json:"product,omitempty"`
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.Service.Ping(ctx); err != nil {
			if s.Log != nil {
				s.Log.Warn("readyz failed", zap.Error(err))
			}
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/products", func(pr chi.Router) {
		pr.Get("/", s.list)
		pr.Get("/low-stock", s.lowStock)

		pr.Group(func(wr chi.Router) {
			if s.WriteLimiter != nil {
				wr.Use(s.WriteLimiter.Middleware)
			}
			wr.Post("/", s.add)
			wr.Post("/{name}/quantity", s.adjust)
			wr.Delete("/{name}", s.remove)
		})
	})

	return r
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	products, err := s.Service.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "list products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := s.Service.LowStock(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "list low stock failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	var req addReq
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			kit.WriteError(w, r, http.StatusBadRequest, "bad form", nil)
			return
		}
		req = addReq{
			Name:     r.PostForm.Get("name"),
			Category: r.PostForm.Get("category"),
			Quantity: r.PostForm.Get("quantity"),
			Price:    r.PostForm.Get("price"),
		}
	} else if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	p, err := s.Service.Add(r.Context(), req.Name, req.Category, req.Quantity, req.Price)
	if err != nil {
		s.writeServiceError(w, r, "add product failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, messageResp{Message: "product added", Product: &p})
}

func (s *Server) adjust(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(r)
	if !ok {
		kit.WriteError(w, r, http.StatusBadRequest, "bad product name", nil)
		return
	}

	var req adjustReq
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			kit.WriteError(w, r, http.StatusBadRequest, "bad form", nil)
			return
		}
		req.Delta = r.PostForm.Get("delta")
	} else if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	p, err := s.Service.AdjustQuantity(r.Context(), name, req.Delta)
	if err != nil {
		s.writeServiceError(w, r, "adjust quantity failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, messageResp{Message: "quantity updated", Product: &p})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(r)
	if !ok {
		kit.WriteError(w, r, http.StatusBadRequest, "bad product name", nil)
		return
	}

	if err := s.Service.Remove(r.Context(), name); err != nil {
		s.writeServiceError(w, r, "remove product failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, messageResp{Message: "product removed"})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, text := statusFor(err)
	if status >= http.StatusInternalServerError && s.Log != nil {
		s.Log.Error(msg, zap.Error(err))
	}
	kit.WriteError(w, r, status, text, nil)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "quantity and price must be valid numbers"
	case errors.Is(err, ErrInvalidRange):
		return http.StatusBadRequest, "quantity and price must be greater than zero"
	case errors.Is(err, ErrMissingField):
		return http.StatusBadRequest, "name and category are required"
	case errors.Is(err, ErrDeltaTooLarge):
		return http.StatusBadRequest, "change too large (max ±100 units)"
	case errors.Is(err, ErrDuplicateRecord):
		return http.StatusConflict, "product already exists"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "server error"
	}
}

// nameParam returns the decoded {name} segment. chi routes on RawPath when the
// request carries one (e.g. an escaped '/'), leaving the segment escaped.
func nameParam(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name, true
	}
	decoded, err := url.PathUnescape(name)
	if err != nil {
		return "", false
	}
	return decoded, true
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}
