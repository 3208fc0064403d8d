package db

import (
	"context"
	"errors"

	"wps/internal/domain/auth"
	"wps/internal/domain/wps"
)

func Seed(ctx context.Context, pool *Pool) error {
	if err := ensurePermissions(ctx, pool); err != nil {
		return err
	}

	roleIDs, err := ensureRoles(ctx, pool)
	if err != nil {
		return err
	}

	if err := ensureRolePermissions(ctx, pool, roleIDs); err != nil {
		return err
	}

	if err := ensureSettings(ctx, pool); err != nil {
		return err
	}

	return ensureCategoryMappings(ctx, pool)
}

func ensurePermissions(ctx context.Context, pool *Pool) error {
	for _, perm := range auth.DefaultPermissions {
		_, err := pool.Exec(ctx, "INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING", perm)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureRoles(ctx context.Context, pool *Pool) (map[string]string, error) {
	roleIDs := map[string]string{}
	for roleName := range auth.RolePermissions {
		var id string
		err := pool.QueryRow(ctx, `
      INSERT INTO roles (name) VALUES ($1)
      ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
      RETURNING id::text
    `, roleName).Scan(&id)
		if err != nil {
			return nil, err
		}
		roleIDs[roleName] = id
	}
	return roleIDs, nil
}

func ensureRolePermissions(ctx context.Context, pool *Pool, roleIDs map[string]string) error {
	permMap := map[string]string{}
	rows, err := pool.Query(ctx, "SELECT id::text, key FROM permissions")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return err
		}
		permMap[key] = id
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for roleName, perms := range auth.RolePermissions {
		roleID := roleIDs[roleName]
		for _, permKey := range perms {
			permID, ok := permMap[permKey]
			if !ok {
				return errors.New("permission not found: " + permKey)
			}
			_, err := pool.Exec(ctx, "INSERT INTO role_permissions (role_id, permission_id) VALUES ($1::uuid, $2::uuid) ON CONFLICT DO NOTHING", roleID, permID)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func ensureSettings(ctx context.Context, pool *Pool) error {
	_, err := pool.Exec(ctx, "INSERT INTO wps_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING")
	return err
}

// ensureCategoryMappings adds the default component names without touching
// mappings an operator has already changed.
func ensureCategoryMappings(ctx context.Context, pool *Pool) error {
	for _, m := range wps.DefaultCategoryMappings {
		_, err := pool.Exec(ctx, `
      INSERT INTO wps_component_categories (component_name, category)
      VALUES ($1,$2)
      ON CONFLICT (component_name) DO NOTHING
    `, m.ComponentName, m.Category)
		if err != nil {
			return err
		}
	}
	return nil
}
