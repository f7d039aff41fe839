package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/overture-stack/ego-sub000/internal/audit"
	"github.com/overture-stack/ego-sub000/internal/authz"
	"github.com/overture-stack/ego-sub000/internal/scope"
)

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.dir.DeleteUser(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	g, err := a.dir.CreateGroup(r.Context(), req.Name, req.Description)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := a.dir.DeleteGroup(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	member, err := parseOwner(req.Kind, req.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.dir.AddGroupMember(r.Context(), mux.Vars(r)["id"], member); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (a *API) handleRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	member, err := parseOwner(vars["kind"], vars["memberId"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.dir.RemoveGroupMember(r.Context(), vars["id"], member); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (a *API) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	app, err := a.dir.CreateApplication(r.Context(), req.Name, authz.ApplicationType(req.Type))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (a *API) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	if err := a.dir.DeleteApplication(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	p, err := a.dir.CreatePolicy(r.Context(), req.Name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := a.dir.DeletePolicy(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleUpsertPermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, err := parseOwner(vars["kind"], vars["ownerId"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	var req struct {
		Mask string `json:"mask"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	level, err := scope.ParseLevel(req.Mask)
	if err != nil {
		a.writeError(w, fmt.Errorf("%w: %v", authz.ErrInvalidInput, err))
		return
	}
	perm, err := a.dir.UpsertPermission(r.Context(), owner, vars["id"], level)
	if err != nil {
		a.writeError(w, err)
		return
	}
	audit.Log(r.Context(), "permission.upsert", map[string]any{
		"owner_kind": owner.Kind,
		"owner_id":   owner.ID,
		"policy_id":  vars["id"],
		"level":      level.String(),
	})
	writeJSON(w, http.StatusOK, perm)
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, err := parseOwner(vars["kind"], vars["ownerId"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.dir.DeletePermission(r.Context(), owner, vars["id"]); err != nil {
		a.writeError(w, err)
		return
	}
	audit.Log(r.Context(), "permission.delete", map[string]any{
		"owner_kind": owner.Kind,
		"owner_id":   owner.ID,
		"policy_id":  vars["id"],
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
