package geocode

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// UpdateAddressBook geocodes every location whose ID is not in book yet and
// returns the extended book with the number of rows added. Failed lookups are
// recorded with nil coordinates so they are not retried on every refresh.
// Only context cancellation returns an error; the rows added so far are
// returned with it.
func (r *Resolver) UpdateAddressBook(
	ctx context.Context,
	book []covid.Address,
	locations []covid.HighRiskLocation,
) ([]covid.Address, int, error) {
	known := make(map[string]struct{}, len(book))
	for _, a := range book {
		known[a.ID] = struct{}{}
	}
	out := append(make([]covid.Address, 0, len(book)), book...)
	added := 0
	for _, loc := range locations {
		if _, ok := known[loc.ID]; ok {
			continue
		}
		known[loc.ID] = struct{}{}

		row := covid.Address{
			ID:            loc.ID,
			SubDistrictZh: loc.SubDistrictZh,
			SubDistrictEn: loc.SubDistrictEn,
			LocationEn:    loc.LocationEn,
			LocationZh:    loc.LocationZh,
		}
		p, err := r.ResolveLocation(ctx, loc)
		switch {
		case err == nil:
			lat, lng := p.Lat, p.Lng
			row.Latitude = &lat
			row.Longitude = &lng
		case errors.Is(err, ErrNotFound):
			r.logger.Warn("no coordinates for location",
				zap.String("id", loc.ID),
				zap.String("address", loc.AddressQuery()),
			)
		default:
			return out, added, fmt.Errorf("update address book: %w", err)
		}
		out = append(out, row)
		added++
	}
	return out, added, nil
}
