package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/offerbuddy/offerbuddy/internal/auth"
	"github.com/offerbuddy/offerbuddy/internal/upload"
)

func newUploadEnv(t *testing.T) (*UploadHandlers, *auth.JWTService) {
	t.Helper()
	// The service signs URLs offline; no S3 calls are made in these tests.
	service, err := upload.NewService(upload.ServiceConfig{
		BucketName:      "test-bucket",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        "https://test.r2.cloudflarestorage.com",
		MaxSizeMB:       15,
	})
	if err != nil {
		t.Fatalf("failed to create upload service: %v", err)
	}

	jwtService := auth.NewJWTService("test-secret-key")
	return NewUploadHandlers(service, jwtService), jwtService
}

func signRequest(t *testing.T, jwtService *auth.JWTService, role string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := jwtService.GenerateAccessToken("user-1", role)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestSignUpload_Success(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	body, _ := json.Marshal(SignUploadRequest{
		ContentType: "image/jpeg",
		SizeBytes:   1024,
	})
	w := httptest.NewRecorder()
	h.SignUpload(w, signRequest(t, jwtService, auth.RoleVendor, body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp upload.SignedURLResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.URL == "" {
		t.Error("expected a signed URL")
	}
	if !strings.HasPrefix(resp.Key, "products/temp/") {
		t.Errorf("expected temp key prefix, got %s", resp.Key)
	}
	if !strings.HasSuffix(resp.Key, ".jpg") {
		t.Errorf("expected .jpg extension, got %s", resp.Key)
	}
	if resp.ExpiresAt.IsZero() {
		t.Error("expected an expiration timestamp")
	}
}

func TestSignUpload_WithProductID(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	productID := "prod-123"
	body, _ := json.Marshal(SignUploadRequest{
		ContentType: "image/png",
		SizeBytes:   2048,
		ProductID:   &productID,
	})
	w := httptest.NewRecorder()
	h.SignUpload(w, signRequest(t, jwtService, auth.RoleVendor, body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp upload.SignedURLResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !strings.HasPrefix(resp.Key, "products/prod-123/") {
		t.Errorf("expected product key prefix, got %s", resp.Key)
	}
}

func TestSignUpload_MissingToken(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	body, _ := json.Marshal(SignUploadRequest{ContentType: "image/jpeg", SizeBytes: 1024})
	w := httptest.NewRecorder()
	h.SignUpload(w, signRequest(t, jwtService, "", body))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if errResp.Error.Code != ErrCodeAuthFailed {
		t.Errorf("expected code %s, got %s", ErrCodeAuthFailed, errResp.Error.Code)
	}
}

func TestSignUpload_GarbageToken(t *testing.T) {
	h, _ := newUploadEnv(t)

	body, _ := json.Marshal(SignUploadRequest{ContentType: "image/jpeg", SizeBytes: 1024})
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	h.SignUpload(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestSignUpload_RefreshTokenRejected(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	token, err := jwtService.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatalf("failed to generate refresh token: %v", err)
	}

	body, _ := json.Marshal(SignUploadRequest{ContentType: "image/jpeg", SizeBytes: 1024})
	req := httptest.NewRequest(http.MethodPost, "/uploads/sign", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.SignUpload(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestSignUpload_ShopperForbidden(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	body, _ := json.Marshal(SignUploadRequest{ContentType: "image/jpeg", SizeBytes: 1024})
	w := httptest.NewRecorder()
	h.SignUpload(w, signRequest(t, jwtService, auth.RoleShopper, body))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if errResp.Error.Code != ErrCodeForbidden {
		t.Errorf("expected code %s, got %s", ErrCodeForbidden, errResp.Error.Code)
	}
}

func TestSignUpload_InvalidJSON(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	w := httptest.NewRecorder()
	h.SignUpload(w, signRequest(t, jwtService, auth.RoleVendor, []byte("invalid json")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if errResp.Error.Code != ErrCodeBadRequest {
		t.Errorf("expected code %s, got %s", ErrCodeBadRequest, errResp.Error.Code)
	}
}

func TestFinalizeUpload_InvalidKey(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	token, err := jwtService.GenerateAccessToken("user-1", auth.RoleVendor)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	// Key validation happens before any storage call, so no network is hit.
	body, _ := json.Marshal(FinalizeUploadRequest{Key: "../../etc/passwd"})
	req := httptest.NewRequest(http.MethodPost, "/uploads/finalize", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.FinalizeUpload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFinalizeUpload_MissingKey(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	body, _ := json.Marshal(FinalizeUploadRequest{})
	w := httptest.NewRecorder()
	h.FinalizeUpload(w, signRequest(t, jwtService, auth.RoleVendor, body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if errResp.Error.Code != ErrCodeValidation {
		t.Errorf("expected code %s, got %s", ErrCodeValidation, errResp.Error.Code)
	}
}

func TestFinalizeUpload_ShopperForbidden(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	body, _ := json.Marshal(FinalizeUploadRequest{Key: "products/temp/a.jpg"})
	w := httptest.NewRecorder()
	h.FinalizeUpload(w, signRequest(t, jwtService, auth.RoleShopper, body))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
}

func TestSignUpload_Validation(t *testing.T) {
	h, jwtService := newUploadEnv(t)

	tests := []struct {
		name     string
		req      SignUploadRequest
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing content type",
			req:      SignUploadRequest{SizeBytes: 1024},
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeValidation,
		},
		{
			name:     "zero size",
			req:      SignUploadRequest{ContentType: "image/jpeg"},
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeValidation,
		},
		{
			name:     "negative size",
			req:      SignUploadRequest{ContentType: "image/jpeg", SizeBytes: -1},
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeValidation,
		},
		{
			name:     "unsupported type",
			req:      SignUploadRequest{ContentType: "application/pdf", SizeBytes: 1024},
			wantCode: http.StatusUnsupportedMediaType,
			wantErr:  ErrCodeUnsupportedType,
		},
		{
			name:     "file too large",
			req:      SignUploadRequest{ContentType: "image/webp", SizeBytes: 16 * 1024 * 1024},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  ErrCodeFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.req)
			w := httptest.NewRecorder()
			h.SignUpload(w, signRequest(t, jwtService, auth.RoleVendor, body))

			if w.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			var errResp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to parse error response: %v", err)
			}
			if errResp.Error.Code != tt.wantErr {
				t.Errorf("expected code %s, got %s", tt.wantErr, errResp.Error.Code)
			}
		})
	}
}
