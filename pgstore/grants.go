package pgstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/deskhive/authcore/permission"
)

// GrantRows loads the flat membership and grant rows feeding permission.Build.
// Admin scoping happens here: superadmin memberships pull every function and
// asset type reachable through the account's buildings, admin memberships only
// rows backed by an explicit scope grant, other roles none.
func (s *Store) GrantRows(ctx context.Context, accountID uuid.UUID) (*permission.Rows, error) {
	out := &permission.Rows{}

	if err := s.loadOrganizations(ctx, accountID, out); err != nil {
		return nil, err
	}
	if err := s.loadBuildings(ctx, accountID, out); err != nil {
		return nil, err
	}
	if err := s.loadBookable(ctx, accountID, out); err != nil {
		return nil, err
	}
	if err := s.loadBindings(ctx, accountID, out); err != nil {
		return nil, err
	}
	if err := s.loadAdminScope(ctx, accountID, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Store) loadOrganizations(ctx context.Context, accountID uuid.UUID, out *permission.Rows) error {
	rows, err := s.db.QueryContext(ctx, `
		select o.id, o.name, m.role, m.banned, m.contractor, m.visitor
		from organization_members m
		join organizations o on o.id = m.organization_id
		where m.account_id = $1
		order by o.name
	`, accountID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row  permission.OrganizationRow
			role int
		)
		if err := rows.Scan(&row.ID, &row.Name, &role, &row.Banned, &row.Contractor, &row.Visitor); err != nil {
			return err
		}
		row.Role = permission.OrgRole(role)
		out.Organizations = append(out.Organizations, row)
	}
	return rows.Err()
}

func (s *Store) loadBuildings(ctx context.Context, accountID uuid.UUID, out *permission.Rows) error {
	rows, err := s.db.QueryContext(ctx, `
		select b.id, b.organization_id, b.name, m.function,
		       m.first_aid_officer, m.fire_warden, m.booking_override
		from building_members m
		join buildings b on b.id = m.building_id
		where m.account_id = $1
		order by b.name
	`, accountID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var row permission.BuildingRow
		err := rows.Scan(&row.ID, &row.OrganizationID, &row.Name, &row.Function,
			&row.FirstAidOfficer, &row.FireWarden, &row.BookingOverride)
		if err != nil {
			return err
		}
		out.Buildings = append(out.Buildings, row)
	}
	return rows.Err()
}

func (s *Store) loadBookable(ctx context.Context, accountID uuid.UUID, out *permission.Rows) error {
	desks, err := s.buildingIDSet(ctx, `
		select distinct d.building_id
		from desks d
		join building_members m on m.building_id = d.building_id
		where m.account_id = $1 and d.bookable = true
	`, accountID)
	if err != nil {
		return err
	}
	out.BookableDesks = desks

	rooms, err := s.buildingIDSet(ctx, `
		select distinct r.building_id
		from rooms r
		join building_members m on m.building_id = r.building_id
		where m.account_id = $1 and r.bookable = true
	`, accountID)
	if err != nil {
		return err
	}
	out.BookableRooms = rooms

	rows, err := s.db.QueryContext(ctx, `
		select distinct a.building_id, a.asset_type_id, t.name
		from assets a
		join asset_types t on t.id = a.asset_type_id
		join building_members m on m.building_id = a.building_id
		where m.account_id = $1 and a.bookable = true
	`, accountID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var row permission.AssetTypeRow
		if err := rows.Scan(&row.BuildingID, &row.AssetTypeID, &row.Name); err != nil {
			return err
		}
		out.BookableAssets = append(out.BookableAssets, row)
	}
	return rows.Err()
}

func (s *Store) buildingIDSet(ctx context.Context, query string, accountID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) loadBindings(ctx context.Context, accountID uuid.UUID, out *permission.Rows) error {
	seatRows, err := s.db.QueryContext(ctx, `
		select d.building_id, d.id, d.name
		from desks d
		where d.assigned_account_id = $1
		order by d.name
	`, accountID)
	if err != nil {
		return err
	}
	defer seatRows.Close()

	for seatRows.Next() {
		var row permission.SeatRow
		if err := seatRows.Scan(&row.BuildingID, &row.DeskID, &row.Name); err != nil {
			return err
		}
		out.Seats = append(out.Seats, row)
	}
	if err := seatRows.Err(); err != nil {
		return err
	}

	assetRows, err := s.db.QueryContext(ctx, `
		select a.building_id, a.asset_type_id, a.id, a.name
		from assets a
		where a.assigned_account_id = $1
		order by a.name
	`, accountID)
	if err != nil {
		return err
	}
	defer assetRows.Close()

	for assetRows.Next() {
		var row permission.AssetRow
		if err := assetRows.Scan(&row.BuildingID, &row.AssetTypeID, &row.AssetID, &row.Name); err != nil {
			return err
		}
		out.Assets = append(out.Assets, row)
	}
	return assetRows.Err()
}

func (s *Store) loadAdminScope(ctx context.Context, accountID uuid.UUID, out *permission.Rows) error {
	// Superadmins see every function reachable through their buildings;
	// admins only functions with an explicit scope grant.
	funcRows, err := s.db.QueryContext(ctx, `
		select bf.building_id, bf.function_id, f.name
		from building_functions bf
		join functions f on f.id = bf.function_id
		join building_members bm on bm.building_id = bf.building_id
		join buildings b on b.id = bf.building_id
		join organization_members om
		  on om.organization_id = b.organization_id and om.account_id = $1
		where bm.account_id = $1
		  and (
			om.role = $2
			or (om.role = $3 and exists (
				select 1 from admin_scope_grants g
				where g.account_id = $1
				  and g.building_id = bf.building_id
				  and g.function_id = bf.function_id
			))
		  )
		order by f.name
	`, accountID, int(permission.OrgRoleSuperAdmin), int(permission.OrgRoleAdmin))
	if err != nil {
		return err
	}
	defer funcRows.Close()

	for funcRows.Next() {
		var row permission.FunctionRow
		if err := funcRows.Scan(&row.BuildingID, &row.FunctionID, &row.Name); err != nil {
			return err
		}
		out.AdminFunctions = append(out.AdminFunctions, row)
	}
	if err := funcRows.Err(); err != nil {
		return err
	}

	typeRows, err := s.db.QueryContext(ctx, `
		select distinct a.building_id, a.asset_type_id, t.name
		from assets a
		join asset_types t on t.id = a.asset_type_id
		join building_members bm on bm.building_id = a.building_id
		join buildings b on b.id = a.building_id
		join organization_members om
		  on om.organization_id = b.organization_id and om.account_id = $1
		where bm.account_id = $1
		  and (
			om.role = $2
			or (om.role = $3 and exists (
				select 1 from admin_scope_grants g
				where g.account_id = $1
				  and g.building_id = a.building_id
				  and g.asset_type_id = a.asset_type_id
			))
		  )
		order by t.name
	`, accountID, int(permission.OrgRoleSuperAdmin), int(permission.OrgRoleAdmin))
	if err != nil {
		return err
	}
	defer typeRows.Close()

	for typeRows.Next() {
		var row permission.AssetTypeRow
		if err := typeRows.Scan(&row.BuildingID, &row.AssetTypeID, &row.Name); err != nil {
			return err
		}
		out.AdminAssetTypes = append(out.AdminAssetTypes, row)
	}
	return typeRows.Err()
}
