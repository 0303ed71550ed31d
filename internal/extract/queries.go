package extract

// SQL kept as named constants for clarity and reuse.
const (
	selectChangedFilmworksSQL = `
SELECT id
FROM film_work
WHERE updated_at > $1
ORDER BY updated_at
LIMIT $2`

	selectChangedPersonsSQL = `
SELECT id, updated_at
FROM person
WHERE updated_at > $1
ORDER BY updated_at
LIMIT $2`

	selectChangedGenresSQL = `
SELECT id, updated_at
FROM genre
WHERE updated_at > $1
ORDER BY updated_at
LIMIT $2`

	selectFilmworksByPersonSQL = `
SELECT DISTINCT fw.id, fw.updated_at
FROM film_work fw
JOIN person_film_work pfw ON pfw.film_work_id = fw.id
WHERE pfw.person_id = ANY($1) AND fw.updated_at > $2
ORDER BY fw.updated_at
LIMIT $3`

	selectFilmworksByGenreSQL = `
SELECT DISTINCT fw.id, fw.updated_at
FROM film_work fw
JOIN genre_film_work gfw ON gfw.film_work_id = fw.id
WHERE gfw.genre_id = ANY($1) AND fw.updated_at > $2
ORDER BY fw.updated_at
LIMIT $3`

	enrichFilmworksSQL = `
SELECT
    fw.id, fw.title, fw.description, fw.rating, fw.type, fw.updated_at,
    pfw.role AS p_role, p.id AS p_id, p.full_name AS p_full_name, p.updated_at AS p_updated_at,
    g.id AS g_id, g.name AS g_name, g.updated_at AS g_updated_at
FROM film_work fw
LEFT JOIN person_film_work pfw ON pfw.film_work_id = fw.id
LEFT JOIN person p ON p.id = pfw.person_id
LEFT JOIN genre_film_work gfw ON gfw.film_work_id = fw.id
LEFT JOIN genre g ON g.id = gfw.genre_id
WHERE fw.id = ANY($1)
ORDER BY fw.updated_at, fw.id`
)
