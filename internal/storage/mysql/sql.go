package mysql

const upsertRefugeSQL = `
INSERT INTO refuges
  (refuge_key, name, structure, lat, lng, altitude_m, places, gardien, description, urls)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name        = VALUES(name),
  structure   = VALUES(structure),
  lat         = VALUES(lat),
  lng         = VALUES(lng),
  altitude_m  = VALUES(altitude_m),
  places      = VALUES(places),
  gardien     = VALUES(gardien),
  description = VALUES(description),
  urls        = VALUES(urls),
  updated_at  = CURRENT_TIMESTAMP
`

// Availability is replaced wholesale per refuge: dates that vanished from the
// source must not survive.
const deleteAvailabilitySQL = `DELETE FROM refuge_availability WHERE refuge_key = ?`

const insertAvailabilityPrefix = "INSERT INTO refuge_availability\n  (refuge_key, day, beds)\nVALUES "

// Followed by the NOT IN placeholder list; availability rows go with the
// refuge through the foreign key cascade.
const pruneRefugesPrefix = "DELETE FROM refuges WHERE refuge_key NOT IN "

const insertMissSQL = `
INSERT INTO join_misses (refuge_key, name, reason)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE seen_at = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const listRefugesSQL = `
SELECT
  refuge_key,
  name,
  structure,
  lat,
  lng,
  altitude_m,
  places,
  gardien,
  description,
  urls
FROM refuges
ORDER BY id
`

// day is a DATE column; formatted back to the YYYY-MM-DD wire key.
const listAvailabilitySQL = `
SELECT refuge_key, DATE_FORMAT(day, '%Y-%m-%d'), beds
FROM refuge_availability
`
