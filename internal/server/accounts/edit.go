package accounts

import (
	"context"

	"github.com/subit-dev/posterd/internal/common"
)

// EditVariant is one field change in a self-service edit request.
type EditVariant interface{ isEditVariant() }

type EditName struct{ Name string }
type EditSchoolID struct{ SchoolID uint32 }
type EditPhone struct{ Phone uint64 }
type EditHouse struct{ House *string }
type EditOrganization struct{ Organization *string }
type EditPassword struct{ Old, New string }
type EditTokenExpireDays struct{ Days uint16 }

func (EditName) isEditVariant()            {}
func (EditSchoolID) isEditVariant()        {}
func (EditPhone) isEditVariant()           {}
func (EditHouse) isEditVariant()           {}
func (EditOrganization) isEditVariant()    {}
func (EditPassword) isEditVariant()        {}
func (EditTokenExpireDays) isEditVariant() {}

// Edit applies a batch of profile changes for the account itself. The
// batch is staged against a copy and committed in one step under the
// account's lock: a failing variant leaves the account untouched.
func (s *Store) Edit(ctx context.Context, id uint64, variants []EditVariant) error {
	e, ok := s.lookup(id)
	if !ok {
		return common.ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.acc.Verified == nil {
		return common.ErrUserUnverified
	}

	staged := e.acc.Verified.Attributes
	for _, v := range variants {
		if err := applyEditVariant(&staged, v); err != nil {
			return err
		}
	}
	e.acc.Verified.Attributes = staged

	snapshot := e.acc
	s.save(ctx, &snapshot)
	return nil
}

func applyEditVariant(attrs *Attributes, variant EditVariant) error {
	switch v := variant.(type) {
	case EditName:
		attrs.Name = v.Name
	case EditSchoolID:
		attrs.SchoolID = v.SchoolID
	case EditPhone:
		attrs.Phone = v.Phone
	case EditHouse:
		attrs.House = v.House
	case EditOrganization:
		attrs.Organization = v.Organization
	case EditPassword:
		if !checkPassword(attrs.PasswordHash, v.Old) {
			return common.ErrPasswordIncorrect
		}
		hash, err := hashPassword(v.New)
		if err != nil {
			return err
		}
		attrs.PasswordHash = hash
	case EditTokenExpireDays:
		attrs.TokenExpireDays = v.Days
	}
	return nil
}

// MakeAccountDescriptor is an administrator's request to create a
// verified account directly, skipping email verification.
type MakeAccountDescriptor struct {
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	SchoolID     uint32      `json:"school_id"`
	Phone        uint64      `json:"phone"`
	House        *string     `json:"house,omitempty"`
	Organization *string     `json:"organization,omitempty"`
	Password     string      `json:"password"`
	Permissions  Permissions `json:"permissions"`
}

// MakeAccount creates a verified account on behalf of an operator. The
// requested permission set is filtered down to what the operator's own
// permissions contain, preventing privilege escalation by construction.
func (s *Store) MakeAccount(ctx context.Context, operatorID uint64, desc MakeAccountDescriptor) (uint64, error) {
	operator, ok := s.lookup(operatorID)
	if !ok {
		return 0, common.ErrAccountNotFound
	}

	operator.mu.RLock()
	operatorPerms := append(Permissions(nil), operator.acc.Permissions()...)
	operator.mu.RUnlock()

	granted := make(Permissions, 0, len(desc.Permissions))
	for _, p := range desc.Permissions {
		if operatorPerms.Contains(p) {
			granted = append(granted, p)
		}
	}

	hash, err := hashPassword(desc.Password)
	if err != nil {
		return 0, err
	}

	acc := Account{
		ID: s.hasher.HashEmail(desc.Email),
		Verified: &Verified{
			Attributes: Attributes{
				Email:           desc.Email,
				Name:            desc.Name,
				SchoolID:        desc.SchoolID,
				Phone:           desc.Phone,
				House:           desc.House,
				Organization:    desc.Organization,
				Permissions:     granted,
				RegisteredAt:    s.now(),
				PasswordHash:    hash,
				TokenExpireDays: s.opts.DefaultTokenExpireDays,
			},
			Tokens: NewTokenLedger(),
		},
	}

	s.mu.Lock()
	if _, exists := s.index[acc.ID]; exists {
		s.mu.Unlock()
		return 0, common.ErrConflict
	}
	s.index[acc.ID] = len(s.entries)
	s.entries = append(s.entries, &entry{acc: acc})
	s.mu.Unlock()

	s.save(ctx, &acc)
	s.logger.Info(ctx, "account built by operator", "id", acc.ID, "operator", operatorID)
	return acc.ID, nil
}

// ModifyVariant is one field change in an administrative modification.
type ModifyVariant interface{ isModifyVariant() }

type ModifyEmail struct{ Email string }
type ModifyName struct{ Name string }
type ModifySchoolID struct{ SchoolID uint32 }
type ModifyPhone struct{ Phone uint64 }
type ModifyHouse struct{ House *string }
type ModifyOrganization struct{ Organization *string }
type ModifyPermissions struct{ Permissions Permissions }

func (ModifyEmail) isModifyVariant()        {}
func (ModifyName) isModifyVariant()         {}
func (ModifySchoolID) isModifyVariant()     {}
func (ModifyPhone) isModifyVariant()        {}
func (ModifyHouse) isModifyVariant()        {}
func (ModifyOrganization) isModifyVariant() {}
func (ModifyPermissions) isModifyVariant()  {}

// ModifyAccount applies administrative changes to a target account,
// staged and committed atomically. Permission grants are intersected
// with the operator's own set. Changing the email does NOT change the
// account id: ids are assigned once at creation time.
func (s *Store) ModifyAccount(ctx context.Context, operatorID, targetID uint64, variants []ModifyVariant) error {
	operator, ok := s.lookup(operatorID)
	if !ok {
		return common.ErrAccountNotFound
	}
	operator.mu.RLock()
	operatorPerms := append(Permissions(nil), operator.acc.Permissions()...)
	operator.mu.RUnlock()

	e, ok := s.lookup(targetID)
	if !ok {
		return common.ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.acc.Verified == nil {
		return common.ErrUserUnverified
	}

	staged := e.acc.Verified.Attributes
	for _, variant := range variants {
		switch v := variant.(type) {
		case ModifyEmail:
			staged.Email = v.Email
		case ModifyName:
			staged.Name = v.Name
		case ModifySchoolID:
			staged.SchoolID = v.SchoolID
		case ModifyPhone:
			staged.Phone = v.Phone
		case ModifyHouse:
			staged.House = v.House
		case ModifyOrganization:
			staged.Organization = v.Organization
		case ModifyPermissions:
			granted := make(Permissions, 0, len(v.Permissions))
			for _, p := range v.Permissions {
				if operatorPerms.Contains(p) {
					granted = append(granted, p)
				}
			}
			staged.Permissions = granted
		}
	}
	e.acc.Verified.Attributes = staged

	snapshot := e.acc
	s.save(ctx, &snapshot)
	return nil
}
