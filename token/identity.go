package token

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/permissions"
	pkgerrors "github.com/pkg/errors"
)

type meResult struct {
	ID        json.Number     `json:"id"`
	Username  string          `json:"username"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	Roles     json.RawMessage `json:"roles"`
}

type meRolesResult struct {
	Roles json.RawMessage `json:"roles"`
}

// Me fetches the identity behind accessToken. Roles come from the /me payload
// and, when it carries none, from /me/roles.
func (c *Client) Me(ctx context.Context, accessToken string) (*credentials.Identity, error) {
	var env resultEnvelope
	if _, err := c.call(ctx, http.MethodGet, MePath, accessToken, nil, &env); err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.Me]")
	}
	var me meResult
	if err := json.Unmarshal(env.Result, &me); err != nil {
		return nil, pkgerrors.Wrap(errors.Join(errors.ErrInvalidResponse, err), "[Client.Me] decode")
	}
	if me.Username == "" {
		return nil, pkgerrors.Wrap(errors.ErrInvalidResponse, "[Client.Me] missing username")
	}

	roles := decodeRoles(me.Roles)
	if len(roles) == 0 {
		var rolesEnv resultEnvelope
		if _, err := c.call(ctx, http.MethodGet, MeRolesPath, accessToken, nil, &rolesEnv); err != nil {
			c.logger.Warn().Err(err).Msg("role lookup failed, session will hold no capabilities")
		} else {
			var rr meRolesResult
			if err := json.Unmarshal(rolesEnv.Result, &rr); err == nil {
				roles = decodeRoles(rr.Roles)
			}
		}
	}

	return &credentials.Identity{
		ID:          me.ID.String(),
		Username:    me.Username,
		DisplayName: strings.TrimSpace(me.FirstName + " " + me.LastName),
		Email:       me.Email,
		Roles:       permissions.ParseRoles(roles),
	}, nil
}

// decodeRoles accepts the shapes the platform has used for roles: a map keyed
// by role name, a list of {name} objects, or a list of strings.
func decodeRoles(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err == nil {
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			names = append(names, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Name != "" {
			names = append(names, obj.Name)
		}
	}
	return names
}
