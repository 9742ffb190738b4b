package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hlab-io/openconsole/internal/auth"
	"github.com/hlab-io/openconsole/internal/db/models"
	"github.com/hlab-io/openconsole/internal/iam"
	"github.com/hlab-io/openconsole/internal/repository"
)

// AdminDeps bundles what the admin handlers need to reach the provider.
type AdminDeps struct {
	Sessions        repository.SessionRepository
	Resolver        *iam.Resolver
	Client          *iam.Client
	Aggregator      *iam.Aggregator
	UserSearchLimit int
}

// callerCredential gathers what the resolver can fall back to when no
// service account is configured: the session row for browser callers, or the
// verified bearer token for automation callers.
func (d *AdminDeps) callerCredential(r *http.Request) (*models.Session, string) {
	bearer, _ := auth.TokenStringFromContext(r.Context())

	principal, ok := auth.GetUserFromContext(r.Context())
	if !ok || principal.SessionID == "" {
		return nil, bearer
	}
	sess, err := d.Sessions.GetByID(r.Context(), principal.SessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error().Err(err).Str("session_id", principal.SessionID).Msg("caller session load failed")
		}
		return nil, bearer
	}
	return sess, bearer
}

// HandleAdminListUsers lists provider accounts with their aggregated project
// roles. The response mirrors the management API envelope: a result list plus
// a details block with the total.
func HandleAdminListUsers(deps *AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, bearer := deps.callerCredential(r)
		token, err := deps.Resolver.Resolve(ctx, sess, bearer)
		if err != nil {
			writeProviderError(w, err)
			return
		}

		users, err := deps.Client.SearchUsers(ctx, token, deps.UserSearchLimit)
		if err != nil {
			writeProviderError(w, err)
			return
		}

		results := deps.Aggregator.Collect(ctx, token, users)

		writeJSON(w, http.StatusOK, map[string]any{
			"result": results,
			"details": map[string]string{
				"totalResult": strconv.Itoa(len(results)),
			},
		})
	}
}

// RoleDescriptor documents one assignable project role.
type RoleDescriptor struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

var roleCatalog = []RoleDescriptor{
	{Key: "admin", DisplayName: "Administrator", Description: "Full access to the console including user management"},
	{Key: "viewer", DisplayName: "Viewer", Description: "Read-only access to instances and announcements"},
}

// HandleAdminListRoles returns the assignable role catalog.
func HandleAdminListRoles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": roleCatalog})
	}
}

type assignRolesRequest struct {
	ProjectID string   `json:"projectId"`
	Roles     []string `json:"roles"`
}

// HandleAdminAssignRoles grants project roles to a user. An existing grant
// for the project is merged rather than replaced.
func HandleAdminAssignRoles(deps *AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := chi.URLParam(r, "userID")

		var req assignRolesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ProjectID == "" || len(req.Roles) == 0 {
			writeError(w, http.StatusBadRequest, "projectId and roles are required")
			return
		}

		sess, bearer := deps.callerCredential(r)
		token, err := deps.Resolver.Resolve(ctx, sess, bearer)
		if err != nil {
			writeProviderError(w, err)
			return
		}

		if err := deps.Client.AddUserGrant(ctx, token, userID, req.ProjectID, req.Roles); err != nil {
			writeProviderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
	}
}

// HandleAdminRemoveRole removes one role from a user's project grant.
func HandleAdminRemoveRole(deps *AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := chi.URLParam(r, "userID")
		role := chi.URLParam(r, "role")
		projectID := r.URL.Query().Get("projectId")
		if projectID == "" {
			writeError(w, http.StatusBadRequest, "projectId is required")
			return
		}

		sess, bearer := deps.callerCredential(r)
		token, err := deps.Resolver.Resolve(ctx, sess, bearer)
		if err != nil {
			writeProviderError(w, err)
			return
		}

		if err := deps.Client.RemoveUserGrantRole(ctx, token, userID, projectID, role); err != nil {
			writeProviderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}
