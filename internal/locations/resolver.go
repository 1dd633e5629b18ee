package locations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
)

// Resolver validates location references against the directory.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) (*Resolver, error) {
	if dir == nil {
		return nil, fmt.Errorf("location directory required")
	}
	return &Resolver{dir: dir}, nil
}

// Resolve checks that ref is consistent with the hierarchy. Inactive sites
// and buildings are reported as not found.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Location, error) {
	siteID := normalize(ref.SiteID)
	buildingID := normalize(ref.BuildingID)

	switch ref.Type {
	case enums.LocationGlobal:
		if siteID != nil || buildingID != nil {
			return Location{}, invalid("global stock cannot reference a site or building")
		}
		return Global(), nil

	case enums.LocationSite:
		if siteID == nil {
			return Location{}, invalid("site_id is required for site stock")
		}
		if buildingID != nil {
			return Location{}, invalid("site stock cannot reference a building")
		}
		if err := r.requireSite(ctx, *siteID); err != nil {
			return Location{}, err
		}
		return Location{Type: enums.LocationSite, SiteID: siteID}, nil

	case enums.LocationBuilding:
		if siteID == nil || buildingID == nil {
			return Location{}, invalid("site_id and building_id are required for building stock")
		}
		building, err := r.dir.FindBuilding(ctx, *buildingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Location{}, pkgerrors.New(pkgerrors.CodeNotFound, "building not found")
			}
			return Location{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load building")
		}
		if !building.IsActive {
			return Location{}, pkgerrors.New(pkgerrors.CodeNotFound, "building not found")
		}
		if building.SiteID != *siteID {
			return Location{}, invalid("building does not belong to site").
				WithDetails(map[string]any{
					"building_id":  building.ID.String(),
					"site_id":      siteID.String(),
					"real_site_id": building.SiteID.String(),
				})
		}
		if err := r.requireSite(ctx, *siteID); err != nil {
			return Location{}, err
		}
		return Location{Type: enums.LocationBuilding, SiteID: siteID, BuildingID: buildingID}, nil

	default:
		return Location{}, invalid(fmt.Sprintf("unknown location type %q", ref.Type))
	}
}

func (r *Resolver) requireSite(ctx context.Context, id uuid.UUID) error {
	site, err := r.dir.FindSite(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "site not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load site")
	}
	if !site.IsActive {
		return pkgerrors.New(pkgerrors.CodeNotFound, "site not found")
	}
	return nil
}

func invalid(msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInvalidLocation, msg)
}

func normalize(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	v := *id
	return &v
}
