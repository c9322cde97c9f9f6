package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの最大サイズ。
const maxRequestBodySize = 1 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// actorFromRequest はゲートが設定した識別情報から操作者を取得する。
// 識別情報がない場合は401を書き込みfalseを返す。
func actorFromRequest(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return model.Actor{}, false
	}
	return model.Actor{UserID: id.UserID, Role: id.Role}, true
}

// resourceID はURLパラメータkeyのIDをUUIDとして取り出し、正規化した文字列を返す。
// UUIDとして解釈できない値は存在しないリソースと同じ扱いにし、
// notFoundのエラーを404で書き込んでfalseを返す。
func resourceID(w http.ResponseWriter, r *http.Request, key string, notFound func(ref string) *model.APIError) (string, bool) {
	raw := chi.URLParam(r, key)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, notFound(raw))
		return "", false
	}
	return id.String(), true
}

// userNotFound はresourceIDに渡すためのユーザー用404エラー生成関数。
func userNotFound(string) *model.APIError {
	return model.NewUserNotFoundError()
}

// paginationFromQuery はpage/limitクエリパラメータを読み取る。
// 数値でない値は未指定として扱い、範囲はNormalizeで補正する。
func paginationFromQuery(r *http.Request) model.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return model.Pagination{Page: page, Limit: limit}.Normalize()
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		// 失効したセッションはクライアントから見ると未認証と同じ
		if apiErr.Code == model.ErrCodeInvalidSession {
			apiErr = model.NewUnauthenticatedError()
		}
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeWeakPassword, model.ErrCodeInvalidURL,
		model.ErrCodeInvalidToken, model.ErrCodeTokenMismatch, model.ErrCodeTokenExpired:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodePolicyViolation, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeNotFound, model.ErrCodeUserNotFound, model.ErrCodeArticleNotFound,
		model.ErrCodeCategoryNotFound, model.ErrCodeCommentNotFound:
		return http.StatusNotFound
	case model.ErrCodeConflict:
		return http.StatusConflict
	case model.ErrCodeParseFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
