package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospicore/auth-system/internal/core/domain"
	"github.com/hospicore/auth-system/internal/core/ports"
)

// AdminHandler serves the staff-administration endpoints.
type AdminHandler struct {
	repo ports.AccountRepository
}

func NewAdminHandler(repo ports.AccountRepository) *AdminHandler {
	return &AdminHandler{repo: repo}
}

type adminAccount struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
}

type listAccountsResponse struct {
	Accounts []adminAccount `json:"accounts"`
	Count    int            `json:"count"`
}

// ListAccounts returns every registered account. Admin only.
//
// @Summary      List accounts
// @Tags         admin
// @Produce      json
// @Success      200  {object}  listAccountsResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /api/admin/accounts [get]
func (h *AdminHandler) ListAccounts(c echo.Context) error {
	if _, _, err := ctxClaims(c); err != nil {
		return err
	}

	accounts, err := h.repo.List(c.Request().Context())
	if err != nil {
		return err
	}

	out := make([]adminAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAdminAccount(a))
	}
	return c.JSON(http.StatusOK, listAccountsResponse{Accounts: out, Count: len(out)})
}

func toAdminAccount(a *domain.Account) adminAccount {
	return adminAccount{
		ID:        a.ID,
		Username:  a.Username,
		FullName:  a.FullName,
		Email:     a.Email,
		Phone:     a.Phone,
		Role:      a.Role,
		Active:    a.Active,
		CreatedAt: a.CreatedAt.Unix(),
	}
}
