package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/subit-dev/posterd/internal/server/accounts"
)

func (s *Server) handleAccountCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}

	id, err := s.accounts.Create(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"account_id": id})
}

func (s *Server) handleAccountVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string  `json:"email"`
		Code         uint32  `json:"code"`
		Name         string  `json:"name"`
		Password     string  `json:"password"`
		SchoolID     uint32  `json:"school_id"`
		Phone        uint64  `json:"phone"`
		House        *string `json:"house,omitempty"`
		Organization *string `json:"organization,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	id, err := s.accounts.Activate(r.Context(), req.Email, req.Code, accounts.Activation{
		Name:         req.Name,
		Password:     req.Password,
		SchoolID:     req.SchoolID,
		Phone:        req.Phone,
		House:        req.House,
		Organization: req.Organization,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"account_id": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID uint64 `json:"account_id"`
		Password  string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, err := s.accounts.Login(r.Context(), req.AccountID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account_id": req.AccountID, "token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, token, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := s.accounts.Logout(r.Context(), id, token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	id, token, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.accounts.SignOut(r.Context(), id, req.Password, token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAccountView(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	res, err := s.accounts.View(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     uint32 `json:"code"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.accounts.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// editVariantDTO is the wire form of one account edit.
type editVariantDTO struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func decodeEditVariant(dto editVariantDTO) (accounts.EditVariant, bool) {
	switch dto.Type {
	case "name":
		var v string
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.EditName{Name: v}, true
	case "school_id":
		var v uint32
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.EditSchoolID{SchoolID: v}, true
	case "phone":
		var v uint64
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.EditPhone{Phone: v}, true
	case "house":
		var v *string
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.EditHouse{House: v}, true
	case "organization":
		var v *string
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.EditOrganization{Organization: v}, true
	case "password":
		var v struct {
			Old string `json:"old"`
			New string `json:"new"`
		}
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.EditPassword{Old: v.Old, New: v.New}, true
	case "token_expire_days":
		var v uint16
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.EditTokenExpireDays{Days: v}, true
	}
	return nil, false
}

func (s *Server) handleAccountEdit(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req struct {
		Variants []editVariantDTO `json:"variants"`
	}
	if !decode(w, r, &req) {
		return
	}

	variants := make([]accounts.EditVariant, 0, len(req.Variants))
	for _, dto := range req.Variants {
		v, ok := decodeEditVariant(dto)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown edit variant " + dto.Type})
			return
		}
		variants = append(variants, v)
	}

	if err := s.accounts.Edit(r.Context(), id, variants); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleManageCreate(w http.ResponseWriter, r *http.Request) {
	operatorID, _, ok := s.authenticate(w, r, accounts.PermissionManageAccounts)
	if !ok {
		return
	}
	var req accounts.MakeAccountDescriptor
	if !decode(w, r, &req) {
		return
	}

	id, err := s.accounts.MakeAccount(r.Context(), operatorID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"account_id": id})
}

func (s *Server) handleManageView(w http.ResponseWriter, r *http.Request) {
	_, _, ok := s.authenticate(w, r, accounts.PermissionViewAccounts)
	if !ok {
		return
	}
	var req struct {
		Accounts []uint64 `json:"accounts"`
	}
	if !decode(w, r, &req) {
		return
	}

	results := make([]any, 0, len(req.Accounts))
	for _, id := range req.Accounts {
		res, err := s.accounts.View(r.Context(), id)
		if err != nil {
			results = append(results, map[string]any{"id": id, "error": err.Error()})
			continue
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// modifyVariantDTO is the wire form of one administrative change.
type modifyVariantDTO struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func decodeModifyVariant(dto modifyVariantDTO) (accounts.ModifyVariant, bool) {
	switch dto.Type {
	case "email":
		var v string
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.ModifyEmail{Email: v}, true
	case "name":
		var v string
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.ModifyName{Name: v}, true
	case "school_id":
		var v uint32
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.ModifySchoolID{SchoolID: v}, true
	case "phone":
		var v uint64
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.ModifyPhone{Phone: v}, true
	case "house":
		var v *string
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.ModifyHouse{House: v}, true
	case "organization":
		var v *string
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.ModifyOrganization{Organization: v}, true
	case "permissions":
		var v []accounts.Permission
		if json.Unmarshal(dto.Value, &v) != nil {
			return nil, false
		}
		return accounts.ModifyPermissions{Permissions: v}, true
	}
	return nil, false
}

func (s *Server) handleManageModify(w http.ResponseWriter, r *http.Request) {
	operatorID, _, ok := s.authenticate(w, r, accounts.PermissionManageAccounts)
	if !ok {
		return
	}
	var req struct {
		AccountID uint64             `json:"account_id"`
		Variants  []modifyVariantDTO `json:"variants"`
	}
	if !decode(w, r, &req) {
		return
	}

	variants := make([]accounts.ModifyVariant, 0, len(req.Variants))
	for _, dto := range req.Variants {
		v, ok := decodeModifyVariant(dto)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown modify variant " + dto.Type})
			return
		}
		variants = append(variants, v)
	}

	if err := s.accounts.ModifyAccount(r.Context(), operatorID, req.AccountID, variants); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
