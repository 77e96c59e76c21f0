package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
)

// PrincipalResponse is the public view of an owner or worker.
type PrincipalResponse struct {
	accounts.Profile
	State accounts.PrincipalState `json:"state"`
}

func principalResponse(p *accounts.Principal) PrincipalResponse {
	return PrincipalResponse{
		Profile: accounts.ProfileOf(p, accounts.RoleNames(p.Roles)),
		State:   p.State(),
	}
}

func principalList(records []*accounts.Principal) []PrincipalResponse {
	out := make([]PrincipalResponse, 0, len(records))
	for _, p := range records {
		out = append(out, principalResponse(p))
	}
	return out
}

func (h *Controller) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	session, err := h.svc.Sessions.Login(c.UserContext(), payload.Identifier, payload.Password)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *Controller) Refresh(c *fiber.Ctx) error {
	payload := new(RefreshRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	session, err := h.svc.Sessions.Refresh(c.UserContext(), payload.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *Controller) Logout(c *fiber.Ctx) error {
	payload := new(RefreshRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	if err := h.svc.Sessions.Logout(c.UserContext(), payload.RefreshToken); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Controller) RegisterAccount(c *fiber.Ctx) error {
	payload := new(accounts.Registration)
	if err := parse(c, payload); err != nil {
		return err
	}

	p, err := h.svc.Lifecycle.Register(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	h.logger.Info("account registered", "principal", p.ID.String())
	return c.Status(fiber.StatusCreated).JSON(principalResponse(p))
}

func (h *Controller) Verify(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	payload := new(VerifyRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	ok, err := h.svc.Lifecycle.Verify(c.UserContext(), id, payload.Code)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"verified": ok})
}

func (h *Controller) RequestVerification(c *fiber.Ctx) error {
	payload := new(IdentifierRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	if err := h.svc.Lifecycle.RequestVerification(c.UserContext(), payload.Identifier); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *Controller) PasswordReset(c *fiber.Ctx) error {
	payload := new(IdentifierRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	if err := h.svc.Lifecycle.InitiatePasswordReset(c.UserContext(), payload.Identifier); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *Controller) PasswordResetConfirm(c *fiber.Ctx) error {
	payload := new(PasswordResetConfirmRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	if err := h.svc.Lifecycle.FinalizePasswordReset(c.UserContext(), payload.Token, payload.Password); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Controller) PasswordChange(c *fiber.Ctx) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	id, err := accounts.SubjectUUID(claims)
	if err != nil {
		return err
	}
	payload := new(PasswordChangeRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	err = h.svc.Lifecycle.ChangePassword(c.UserContext(), accounts.ActorFromClaims(claims), id, payload.CurrentPassword, payload.NewPassword)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Controller) Me(c *fiber.Ctx) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	id, err := accounts.SubjectUUID(claims)
	if err != nil {
		return err
	}

	p, err := h.svc.Lifecycle.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	roles, err := h.svc.Roles.EffectiveRoles(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(PrincipalResponse{
		Profile: accounts.ProfileOf(p, roles),
		State:   p.State(),
	})
}

func (h *Controller) UpdateMe(c *fiber.Ctx) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	id, err := accounts.SubjectUUID(claims)
	if err != nil {
		return err
	}
	payload := new(accounts.ProfileUpdate)
	if err := bind(c, payload); err != nil {
		return err
	}

	p, err := h.svc.Lifecycle.UpdateProfile(c.UserContext(), accounts.ActorFromClaims(claims), id, *payload)
	if err != nil {
		return err
	}
	return c.JSON(principalResponse(p))
}

// DeleteMe soft deletes the caller's own account.
func (h *Controller) DeleteMe(c *fiber.Ctx) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	id, err := accounts.SubjectUUID(claims)
	if err != nil {
		return err
	}

	if _, err := h.svc.Lifecycle.SoftDelete(c.UserContext(), accounts.ActorFromClaims(claims), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Controller) CreateWorker(c *fiber.Ctx) error {
	ownerID, _, err := h.owner(c)
	if err != nil {
		return err
	}
	payload := new(accounts.Registration)
	if err := parse(c, payload); err != nil {
		return err
	}

	p, err := h.svc.Lifecycle.RegisterWorker(c.UserContext(), ownerID, *payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(principalResponse(p))
}

func (h *Controller) ListWorkers(c *fiber.Ctx) error {
	ownerID, _, err := h.owner(c)
	if err != nil {
		return err
	}

	workers, err := h.svc.Lifecycle.ActiveWorkers(c.UserContext(), ownerID)
	if err != nil {
		return err
	}
	return c.JSON(principalList(workers))
}

func (h *Controller) DeleteWorker(c *fiber.Ctx) error {
	_, actor, err := h.owner(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	p, err := h.svc.Lifecycle.SoftDelete(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(principalResponse(p))
}

func (h *Controller) RestoreWorker(c *fiber.Ctx) error {
	_, actor, err := h.owner(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	p, err := h.svc.Lifecycle.Restore(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(principalResponse(p))
}

func (h *Controller) PurgeWorker(c *fiber.Ctx) error {
	_, actor, err := h.owner(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.svc.Lifecycle.HardDelete(c.UserContext(), actor, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Controller) RecycleBin(c *fiber.Ctx) error {
	ownerID, _, err := h.owner(c)
	if err != nil {
		return err
	}

	bin, err := h.svc.Lifecycle.RecycleBin(c.UserContext(), ownerID)
	if err != nil {
		return err
	}
	return c.JSON(principalList(bin))
}

func (h *Controller) EmptyRecycleBin(c *fiber.Ctx) error {
	ownerID, _, err := h.owner(c)
	if err != nil {
		return err
	}

	n, err := h.svc.Lifecycle.EmptyRecycleBin(c.UserContext(), ownerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"purged": n})
}

func (h *Controller) ListRoles(c *fiber.Ctx) error {
	roles, err := h.svc.Roles.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(roles)
}

func (h *Controller) CreateRole(c *fiber.Ctx) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	payload := new(RoleCreateRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	role, err := h.svc.Roles.Create(c.UserContext(), accounts.ActorFromClaims(claims), payload.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(role)
}

func (h *Controller) GetRole(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	role, err := h.svc.Roles.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(role)
}

func (h *Controller) UpdateRole(c *fiber.Ctx) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	payload := new(accounts.RoleUpdate)
	if err := bind(c, payload); err != nil {
		return err
	}

	role, err := h.svc.Roles.Update(c.UserContext(), accounts.ActorFromClaims(claims), id, *payload)
	if err != nil {
		return err
	}
	return c.JSON(role)
}

func (h *Controller) DeleteRole(c *fiber.Ctx) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.svc.Roles.Delete(c.UserContext(), accounts.ActorFromClaims(claims), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Controller) ActivateRole(c *fiber.Ctx) error {
	return h.setRoleActive(c, true)
}

func (h *Controller) DeactivateRole(c *fiber.Ctx) error {
	return h.setRoleActive(c, false)
}

func (h *Controller) setRoleActive(c *fiber.Ctx, active bool) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	actor := accounts.ActorFromClaims(claims)
	var role *accounts.Role
	if active {
		role, err = h.svc.Roles.Activate(c.UserContext(), actor, id)
	} else {
		role, err = h.svc.Roles.Deactivate(c.UserContext(), actor, id)
	}
	if err != nil {
		return err
	}
	return c.JSON(role)
}

func (h *Controller) PrincipalRoles(c *fiber.Ctx) error {
	id, err := paramUUID(c, "principal")
	if err != nil {
		return err
	}

	roles, err := h.svc.Roles.EffectiveRoles(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"roles": roles})
}

func (h *Controller) AssignRoles(c *fiber.Ctx) error {
	return h.changeRoles(c, (*accounts.RoleService).Assign)
}

func (h *Controller) RemoveRoles(c *fiber.Ctx) error {
	return h.changeRoles(c, (*accounts.RoleService).Remove)
}

func (h *Controller) ReplaceRoles(c *fiber.Ctx) error {
	return h.changeRoles(c, (*accounts.RoleService).Replace)
}

type roleChange func(s *accounts.RoleService, ctx context.Context, actor accounts.ActorRef, principalID uuid.UUID, roleIDs []uuid.UUID) ([]*accounts.Role, error)

func (h *Controller) changeRoles(c *fiber.Ctx, change roleChange) error {
	claims, err := h.claims(c)
	if err != nil {
		return err
	}
	principalID, err := paramUUID(c, "principal")
	if err != nil {
		return err
	}
	payload := new(RoleAssignmentRequest)
	if err := bind(c, payload); err != nil {
		return err
	}

	roles, err := change(h.svc.Roles, c.UserContext(), accounts.ActorFromClaims(claims), principalID, payload.RoleIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"roles": roles})
}
