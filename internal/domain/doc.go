// Package domain models the weather hazards and map geometry shared by the
// radar overlay components.
//
// # Data Source
//
// Hazards come from the National Weather Service (NWS) active alerts feed,
// https://api.weather.gov/alerts/active, a GeoJSON FeatureCollection. Each
// feature carries its validity window and a Polygon or MultiPolygon outline.
// Alerts issued by county (zone-based) arrive with a null geometry and are
// skipped by the indexer.
//
// # NWS Data Conventions
//
// Coordinates:
//
//	GeoJSON order is [lon, lat], WGS-84. The first ring of a polygon is the
//	outer boundary; later rings are holes.
//
// Validity window:
//
//	"effective" marks the start, "expires" the end, both RFC 3339 with the
//	issuing office's UTC offset, e.g. "2024-04-26T15:10:00-05:00". Some
//	products use "onset"/"ends" instead; both spellings are accepted.
//
// Severity:
//
//	The feed's "severity" property is one of Extreme, Severe, Moderate, Minor,
//	Unknown. When it is missing or Unknown the overlay derives a level from
//	the event name (see package warnings).
//
// # Viewport Bounds
//
// Bounds are a plain west/south/east/north rectangle in degrees. Viewports
// crossing the antimeridian are not supported; the map collaborator clamps
// them before they reach the overlay.
package domain
