package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/offerbuddy/offerbuddy/internal/auth"
	"github.com/offerbuddy/offerbuddy/internal/middleware"
	"github.com/offerbuddy/offerbuddy/internal/upload"
)

// UploadHandlers signs direct-to-storage upload URLs for vendor accounts.
type UploadHandlers struct {
	uploads *upload.Service
	jwt     *auth.JWTService
}

// NewUploadHandlers creates a new UploadHandlers instance.
func NewUploadHandlers(uploads *upload.Service, jwt *auth.JWTService) *UploadHandlers {
	return &UploadHandlers{uploads: uploads, jwt: jwt}
}

// SignUploadRequest is the body for POST /uploads/sign.
type SignUploadRequest struct {
	ContentType string  `json:"content_type"`
	SizeBytes   int64   `json:"size_bytes"`
	ProductID   *string `json:"product_id,omitempty"`
}

// authenticate validates the bearer token and returns its claims. Only
// access tokens are accepted here; refresh tokens belong to the token
// exchange flow.
func (h *UploadHandlers) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing bearer token")
		return nil, false
	}

	claims, err := h.jwt.ValidateToken(strings.TrimSpace(token))
	if err != nil || claims.Type != auth.TokenTypeAccess {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired token")
		return nil, false
	}
	middleware.UpdateResponseContext(w, middleware.SetUserID(r.Context(), claims.Subject))
	return claims, true
}

// SignUpload handles POST /uploads/sign. Vendors receive a short-lived
// pre-signed PUT URL; the actual upload bypasses this server entirely.
func (h *UploadHandlers) SignUpload(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if claims.Role != auth.RoleVendor {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only vendor accounts can upload images")
		return
	}

	var req SignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if req.ContentType == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "content_type is required")
		return
	}
	if req.SizeBytes <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "size_bytes must be positive")
		return
	}

	resp, err := h.uploads.GenerateSignedURL(r.Context(), upload.SignedURLRequest{
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		ProductID:   req.ProductID,
	})
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrUnsupportedType):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnsupportedType)
			WriteError(w, ctx, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, "Content type must be JPEG, PNG, or WebP")
		case errors.Is(err, upload.ErrFileTooLarge):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeFileTooLarge)
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "File exceeds the maximum upload size")
		case errors.Is(err, upload.ErrInvalidProductID):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid product id")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to sign upload URL")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// FinalizeUploadRequest is the body for POST /uploads/finalize.
type FinalizeUploadRequest struct {
	Key string `json:"key"`
}

// FinalizeUpload handles POST /uploads/finalize. After the direct upload
// completes, the object is read back, verified to be a real image, and
// rewritten with EXIF metadata stripped.
func (h *UploadHandlers) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if claims.Role != auth.RoleVendor {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only vendor accounts can finalize uploads")
		return
	}

	var req FinalizeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "key is required")
		return
	}

	info, err := h.uploads.FinalizeImage(r.Context(), req.Key)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrInvalidKey):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid object key")
		case errors.Is(err, upload.ErrObjectNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Uploaded object not found")
		case errors.Is(err, upload.ErrNotAnImage):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnsupportedType)
			WriteError(w, ctx, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, "Object is not a valid image")
		case errors.Is(err, upload.ErrFileTooLarge):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeFileTooLarge)
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "Uploaded object exceeds the maximum size")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to finalize upload")
		}
		return
	}
	writeJSON(w, http.StatusOK, info)
}
