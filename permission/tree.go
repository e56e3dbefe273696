package permission

import "github.com/google/uuid"

// OrgRole is the organization-scoped role of a membership row, distinct from
// the account's system role.
type OrgRole uint8

const (
	OrgRoleNoAccess OrgRole = iota
	OrgRoleUser
	OrgRoleAdmin
	OrgRoleSuperAdmin
	OrgRoleTablet
)

func (r OrgRole) String() string {
	switch r {
	case OrgRoleNoAccess:
		return "noaccess"
	case OrgRoleUser:
		return "user"
	case OrgRoleAdmin:
		return "admin"
	case OrgRoleSuperAdmin:
		return "superadmin"
	case OrgRoleTablet:
		return "tablet"
	default:
		return "unknown"
	}
}

// Tree is the materialized authorization hierarchy for one account. It is
// built fresh on each full-profile fetch and cached by the session layer; it
// is never mutated after Build returns.
type Tree struct {
	Organizations []*Organization `json:"organizations"`
}

// Organization is one organization membership with its reachable buildings.
type Organization struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Role       OrgRole     `json:"role"`
	Banned     bool        `json:"banned"`
	Contractor bool        `json:"contractor"`
	Visitor    bool        `json:"visitor"`
	Buildings  []*Building `json:"buildings"`
}

// Building carries the caller's function, capability flags, bookable-resource
// indicators, permanent bindings, and effective admin scope in one building.
type Building struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Function        string    `json:"function"`
	FirstAidOfficer bool      `json:"first_aid_officer"`
	FireWarden      bool      `json:"fire_warden"`
	BookingOverride bool      `json:"booking_override"`

	BookableDesks      bool        `json:"bookable_desks"`
	BookableRooms      bool        `json:"bookable_rooms"`
	BookableAssetTypes []AssetType `json:"bookable_asset_types"`

	Seats  []Seat         `json:"seats"`
	Assets []AssetBinding `json:"assets"`

	AdminFunctions  []Function  `json:"admin_functions"`
	AdminAssetTypes []AssetType `json:"admin_asset_types"`
}

// Function is a building function/role label the caller administers.
type Function struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// AssetType identifies a bookable or administered asset category.
type AssetType struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Seat is a permanent desk binding.
type Seat struct {
	DeskID uuid.UUID `json:"desk_id"`
	Name   string    `json:"name"`
}

// AssetBinding is a permanent asset assignment.
type AssetBinding struct {
	AssetID     uuid.UUID `json:"asset_id"`
	AssetTypeID uuid.UUID `json:"asset_type_id"`
	Name        string    `json:"name"`
}

// Organization lookup by id. Nil when the account holds no membership.
func (t *Tree) Organization(id uuid.UUID) *Organization {
	if t == nil {
		return nil
	}
	for _, org := range t.Organizations {
		if org.ID == id {
			return org
		}
	}
	return nil
}

// Building lookup across all organizations.
func (t *Tree) Building(id uuid.UUID) *Building {
	if t == nil {
		return nil
	}
	for _, org := range t.Organizations {
		for _, b := range org.Buildings {
			if b.ID == id {
				return b
			}
		}
	}
	return nil
}

// AdministersFunction reports whether the tree grants admin authority over the
// given function in the given building.
func (t *Tree) AdministersFunction(buildingID, functionID uuid.UUID) bool {
	b := t.Building(buildingID)
	if b == nil {
		return false
	}
	for _, f := range b.AdminFunctions {
		if f.ID == functionID {
			return true
		}
	}
	return false
}

// AdministersAssetType reports whether the tree grants admin authority over
// the given asset type in the given building.
func (t *Tree) AdministersAssetType(buildingID, assetTypeID uuid.UUID) bool {
	b := t.Building(buildingID)
	if b == nil {
		return false
	}
	for _, at := range b.AdminAssetTypes {
		if at.ID == assetTypeID {
			return true
		}
	}
	return false
}
