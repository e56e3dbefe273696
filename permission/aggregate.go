package permission

import "github.com/google/uuid"

// Rows is the flat input to Build: one slice per relation, in store query
// order. Admin row sets must already be filtered by the caller's role.
type Rows struct {
	Organizations []OrganizationRow
	Buildings     []BuildingRow

	BookableDesks  []uuid.UUID // building ids with at least one bookable desk
	BookableRooms  []uuid.UUID // building ids with at least one bookable room
	BookableAssets []AssetTypeRow

	Seats  []SeatRow
	Assets []AssetRow

	AdminFunctions  []FunctionRow
	AdminAssetTypes []AssetTypeRow
}

// OrganizationRow is one organization membership.
type OrganizationRow struct {
	ID         uuid.UUID
	Name       string
	Role       OrgRole
	Banned     bool
	Contractor bool
	Visitor    bool
}

// BuildingRow is one building membership. Rows arrive name-ascending from the
// store; Build preserves that order per organization.
type BuildingRow struct {
	ID              uuid.UUID
	OrganizationID  uuid.UUID
	Name            string
	Function        string
	FirstAidOfficer bool
	FireWarden      bool
	BookingOverride bool
}

// FunctionRow scopes a function fact to a building.
type FunctionRow struct {
	BuildingID uuid.UUID
	FunctionID uuid.UUID
	Name       string
}

// AssetTypeRow scopes an asset-type fact to a building.
type AssetTypeRow struct {
	BuildingID  uuid.UUID
	AssetTypeID uuid.UUID
	Name        string
}

// SeatRow is a permanent desk binding.
type SeatRow struct {
	BuildingID uuid.UUID
	DeskID     uuid.UUID
	Name       string
}

// AssetRow is a permanent asset binding.
type AssetRow struct {
	BuildingID  uuid.UUID
	AssetTypeID uuid.UUID
	AssetID     uuid.UUID
	Name        string
}

type assetTypeKey struct {
	building  uuid.UUID
	assetType uuid.UUID
}

// Build aggregates the flat rows into the authorization tree. Cost is linear
// in the total row count. Auxiliary rows whose building (or organization) is
// absent from the membership sets are dropped.
func Build(rows *Rows) *Tree {
	tree := &Tree{Organizations: make([]*Organization, 0, len(rows.Organizations))}

	orgs := make(map[uuid.UUID]*Organization, len(rows.Organizations))
	for _, row := range rows.Organizations {
		org := &Organization{
			ID:         row.ID,
			Name:       row.Name,
			Role:       row.Role,
			Banned:     row.Banned,
			Contractor: row.Contractor,
			Visitor:    row.Visitor,
		}
		orgs[row.ID] = org
		tree.Organizations = append(tree.Organizations, org)
	}

	buildings := make(map[uuid.UUID]*Building, len(rows.Buildings))
	for _, row := range rows.Buildings {
		org, ok := orgs[row.OrganizationID]
		if !ok {
			continue
		}
		b := &Building{
			ID:              row.ID,
			Name:            row.Name,
			Function:        row.Function,
			FirstAidOfficer: row.FirstAidOfficer,
			FireWarden:      row.FireWarden,
			BookingOverride: row.BookingOverride,
		}
		buildings[row.ID] = b
		org.Buildings = append(org.Buildings, b)
	}

	for _, id := range rows.BookableDesks {
		if b, ok := buildings[id]; ok {
			b.BookableDesks = true
		}
	}
	for _, id := range rows.BookableRooms {
		if b, ok := buildings[id]; ok {
			b.BookableRooms = true
		}
	}

	bookableTypes := make(map[assetTypeKey]struct{}, len(rows.BookableAssets))
	for _, row := range rows.BookableAssets {
		b, ok := buildings[row.BuildingID]
		if !ok {
			continue
		}
		key := assetTypeKey{row.BuildingID, row.AssetTypeID}
		if _, dup := bookableTypes[key]; dup {
			continue
		}
		bookableTypes[key] = struct{}{}
		b.BookableAssetTypes = append(b.BookableAssetTypes, AssetType{ID: row.AssetTypeID, Name: row.Name})
	}

	for _, row := range rows.Seats {
		if b, ok := buildings[row.BuildingID]; ok {
			b.Seats = append(b.Seats, Seat{DeskID: row.DeskID, Name: row.Name})
		}
	}
	for _, row := range rows.Assets {
		if b, ok := buildings[row.BuildingID]; ok {
			b.Assets = append(b.Assets, AssetBinding{AssetID: row.AssetID, AssetTypeID: row.AssetTypeID, Name: row.Name})
		}
	}

	for _, row := range rows.AdminFunctions {
		if b, ok := buildings[row.BuildingID]; ok {
			b.AdminFunctions = append(b.AdminFunctions, Function{ID: row.FunctionID, Name: row.Name})
		}
	}

	adminTypes := make(map[assetTypeKey]struct{}, len(rows.AdminAssetTypes))
	for _, row := range rows.AdminAssetTypes {
		b, ok := buildings[row.BuildingID]
		if !ok {
			continue
		}
		key := assetTypeKey{row.BuildingID, row.AssetTypeID}
		if _, dup := adminTypes[key]; dup {
			continue
		}
		adminTypes[key] = struct{}{}
		b.AdminAssetTypes = append(b.AdminAssetTypes, AssetType{ID: row.AssetTypeID, Name: row.Name})
	}

	return tree
}
