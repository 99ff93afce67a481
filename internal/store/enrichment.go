package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/venuescout/venuescout/internal/venue"
)

func (s *PostgresStore) GetEnrichment(ctx context.Context, venueID string) (*venue.Enrichment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT venue_id, hours, hours_last_updated, contact, contact_last_updated,
		       coalesce(description, ''), description_last_updated,
		       features, features_last_updated,
		       coalesce(menu_url, ''), menu_url_last_updated,
		       menu_items, menu_items_last_updated,
		       coalesce(price_range, ''), price_range_last_updated,
		       amenities, amenities_last_updated,
		       coalesce(fees, ''), fees_last_updated,
		       address_components, address_last_updated, sources, not_applicable
		FROM enrichment WHERE venue_id = $1`, venueID)

	e := venue.NewEnrichment(venueID)
	var hoursJSON, contactJSON, featuresJSON, menuItemsJSON, amenitiesJSON, addrJSON, sourcesJSON, naJSON []byte
	var hoursTS, contactTS, descTS, featuresTS, menuURLTS, menuItemsTS, priceTS, amenitiesTS, feesTS, addrTS *time.Time

	if err := row.Scan(&e.VenueID, &hoursJSON, &hoursTS, &contactJSON, &contactTS,
		&e.Description, &descTS, &featuresJSON, &featuresTS,
		&e.MenuURL, &menuURLTS, &menuItemsJSON, &menuItemsTS,
		&e.PriceRange, &priceTS, &amenitiesJSON, &amenitiesTS,
		&e.Fees, &feesTS, &addrJSON, &addrTS, &sourcesJSON, &naJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get enrichment %s: %w", venueID, err)
	}

	if err := unmarshalIfPresent(hoursJSON, &e.Hours); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(contactJSON, &e.Contact); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(featuresJSON, &e.Features); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(menuItemsJSON, &e.MenuItems); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(amenitiesJSON, &e.Amenities); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(addrJSON, &e.AddressComponents); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(sourcesJSON, &e.Sources); err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(naJSON, &e.NotApplicable); err != nil {
		return nil, err
	}

	setIfPresent(e.LastUpdated, venue.FieldHours, hoursTS)
	setIfPresent(e.LastUpdated, venue.FieldContact, contactTS)
	setIfPresent(e.LastUpdated, venue.FieldDescription, descTS)
	setIfPresent(e.LastUpdated, venue.FieldFeatures, featuresTS)
	setIfPresent(e.LastUpdated, venue.FieldMenuURL, menuURLTS)
	setIfPresent(e.LastUpdated, venue.FieldMenuItems, menuItemsTS)
	setIfPresent(e.LastUpdated, venue.FieldPriceRange, priceTS)
	setIfPresent(e.LastUpdated, venue.FieldAmenities, amenitiesTS)
	setIfPresent(e.LastUpdated, venue.FieldFees, feesTS)
	setIfPresent(e.LastUpdated, venue.FieldAddress, addrTS)

	return e, nil
}

// UpsertEnrichment writes every field currently set on e. Fields the
// Unifier left untouched must not be overwritten with zero values by the
// caller: GetEnrichment + mutate + UpsertEnrichment is the expected
// read-modify-write cycle, which the Unifier follows. The upsert is a
// single statement; the venue touch and the job completion are separate
// statements, and no transaction spans them.
func (s *PostgresStore) UpsertEnrichment(ctx context.Context, e *venue.Enrichment) error {
	hoursJSON, err := json.Marshal(e.Hours)
	if err != nil {
		return fmt.Errorf("marshal hours: %w", err)
	}
	contactJSON, err := json.Marshal(e.Contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}
	featuresJSON, _ := json.Marshal(e.Features)
	menuItemsJSON, _ := json.Marshal(e.MenuItems)
	amenitiesJSON, _ := json.Marshal(e.Amenities)
	addrJSON, _ := json.Marshal(e.AddressComponents)
	sourcesJSON, _ := json.Marshal(e.Sources)
	naJSON, _ := json.Marshal(e.NotApplicable)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO enrichment (
			venue_id, hours, hours_last_updated, contact, contact_last_updated,
			description, description_last_updated, features, features_last_updated,
			menu_url, menu_url_last_updated, menu_items, menu_items_last_updated,
			price_range, price_range_last_updated, amenities, amenities_last_updated,
			fees, fees_last_updated, address_components, address_last_updated, sources, not_applicable
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (venue_id) DO UPDATE SET
			hours = excluded.hours, hours_last_updated = excluded.hours_last_updated,
			contact = excluded.contact, contact_last_updated = excluded.contact_last_updated,
			description = excluded.description, description_last_updated = excluded.description_last_updated,
			features = excluded.features, features_last_updated = excluded.features_last_updated,
			menu_url = excluded.menu_url, menu_url_last_updated = excluded.menu_url_last_updated,
			menu_items = excluded.menu_items, menu_items_last_updated = excluded.menu_items_last_updated,
			price_range = excluded.price_range, price_range_last_updated = excluded.price_range_last_updated,
			amenities = excluded.amenities, amenities_last_updated = excluded.amenities_last_updated,
			fees = excluded.fees, fees_last_updated = excluded.fees_last_updated,
			address_components = excluded.address_components, address_last_updated = excluded.address_last_updated,
			sources = excluded.sources, not_applicable = excluded.not_applicable`,
		e.VenueID, hoursJSON, tsOrNil(e.LastUpdated[venue.FieldHours]), contactJSON, tsOrNil(e.LastUpdated[venue.FieldContact]),
		e.Description, tsOrNil(e.LastUpdated[venue.FieldDescription]), featuresJSON, tsOrNil(e.LastUpdated[venue.FieldFeatures]),
		e.MenuURL, tsOrNil(e.LastUpdated[venue.FieldMenuURL]), menuItemsJSON, tsOrNil(e.LastUpdated[venue.FieldMenuItems]),
		e.PriceRange, tsOrNil(e.LastUpdated[venue.FieldPriceRange]), amenitiesJSON, tsOrNil(e.LastUpdated[venue.FieldAmenities]),
		e.Fees, tsOrNil(e.LastUpdated[venue.FieldFees]), addrJSON, tsOrNil(e.LastUpdated[venue.FieldAddress]), sourcesJSON, naJSON)
	if err != nil {
		return fmt.Errorf("upsert enrichment %s: %w", e.VenueID, err)
	}
	return nil
}

// StaleVenueIDs returns venue ids whose enrichment is missing entirely, or
// where any of the hours, contact, price_range, menu_items, description,
// features or address timestamps is missing or past its tier's freshness
// window. menu_url, amenities and fees timestamps are not checked.
func (s *PostgresStore) StaleVenueIDs(ctx context.Context, hoursWindow, menuContactPriceWindow, descFeaturesWindow time.Duration, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT v.id FROM venues v
		LEFT JOIN enrichment e ON e.venue_id = v.id
		WHERE e.venue_id IS NULL
		   OR e.hours_last_updated IS NULL OR e.hours_last_updated < now() - $1::interval
		   OR e.contact_last_updated IS NULL OR e.contact_last_updated < now() - $2::interval
		   OR e.price_range_last_updated IS NULL OR e.price_range_last_updated < now() - $2::interval
		   OR e.menu_items_last_updated IS NULL OR e.menu_items_last_updated < now() - $2::interval
		   OR e.description_last_updated IS NULL OR e.description_last_updated < now() - $3::interval
		   OR e.features_last_updated IS NULL OR e.features_last_updated < now() - $3::interval
		   OR e.address_last_updated IS NULL OR e.address_last_updated < now() - $3::interval
		LIMIT $4`, hoursWindow.String(), menuContactPriceWindow.String(), descFeaturesWindow.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("stale venue ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func unmarshalIfPresent(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func setIfPresent(m map[venue.FieldName]time.Time, field venue.FieldName, ts *time.Time) {
	if ts != nil {
		m[field] = *ts
	}
}

func tsOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
