package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/models"
)

const pgUniqueViolation = "23505"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// --- Images ---

func findImage(ctx context.Context, q querier, key models.IdentityKey) (uuid.UUID, error) {
	key = key.Normalize()
	rows, err := q.Query(ctx,
		`SELECT id FROM images WHERE filename = $1 AND modified_at = $2 AND size_bytes = $3 LIMIT 2`,
		key.Filename, key.ModifiedAt, key.SizeBytes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("find image: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return uuid.Nil, fmt.Errorf("find image: %w", err)
	}

	switch len(ids) {
	case 0:
		return uuid.Nil, ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return uuid.Nil, fmt.Errorf("find image %q: %w", key.Filename, ErrMultipleMatches)
	}
}

func (s *PostgresStore) FindImage(ctx context.Context, key models.IdentityKey) (uuid.UUID, error) {
	return findImage(ctx, s.pool, key)
}

func (s *PostgresStore) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	img := &models.Image{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, path, modified_at, size_bytes, aperture, shutter_speed, iso, date_taken, created_at
		 FROM images WHERE id = $1`, id,
	).Scan(&img.ID, &img.Filename, &img.Path, &img.ModifiedAt, &img.SizeBytes,
		&img.Aperture, &img.ShutterSpeed, &img.ISO, &img.DateTaken, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

func insertImage(ctx context.Context, q querier, img *models.Image) (uuid.UUID, error) {
	key := img.Identity()
	id := uuid.New()
	err := q.QueryRow(ctx,
		`INSERT INTO images (id, filename, path, modified_at, size_bytes, aperture, shutter_speed, iso, date_taken)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT ON CONSTRAINT images_identity_key DO NOTHING
		 RETURNING created_at`,
		id, key.Filename, img.Path, key.ModifiedAt, key.SizeBytes,
		img.Aperture, img.ShutterSpeed, img.ISO, img.DateTaken,
	).Scan(&img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("insert image %q: %w", key.Filename, ErrConflict)
		}
		return uuid.Nil, fmt.Errorf("insert image: %w", err)
	}
	img.ID = id
	img.ModifiedAt = key.ModifiedAt
	return id, nil
}

// InsertImage inserts a new row and reports ErrConflict when the identity
// key is already taken.
func (s *PostgresStore) InsertImage(ctx context.Context, img *models.Image) (uuid.UUID, error) {
	return insertImage(ctx, s.pool, img)
}

// AddImage returns the id of the image with img's identity key, inserting
// it together with one encoding per vector when it is new. Vectors are
// ignored for an image that already exists.
func (s *PostgresStore) AddImage(ctx context.Context, img *models.Image, vectors [][]float32) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("add image: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	id, err := findImage(ctx, tx, img.Identity())
	if err == nil {
		return id, tx.Commit(ctx)
	}
	if !errors.Is(err, ErrNotFound) {
		return uuid.Nil, err
	}

	id, err = insertImage(ctx, tx, img)
	if errors.Is(err, ErrConflict) {
		// A concurrent writer committed the same key between our lookup and insert.
		return findImage(ctx, tx, img.Identity())
	}
	if err != nil {
		return uuid.Nil, err
	}

	for i, vec := range vectors {
		encID, err := insertEncoding(ctx, tx, vec)
		if err != nil {
			return uuid.Nil, err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO image_encodings (id, image_id, encoding_id, position) VALUES ($1, $2, $3, $4)`,
			uuid.New(), id, encID, i); err != nil {
			return uuid.Nil, fmt.Errorf("link image encoding: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("add image: commit: %w", err)
	}
	return id, nil
}

// UpdateImageExposure rewrites the exposure fields of exactly one image.
func (s *PostgresStore) UpdateImageExposure(ctx context.Context, id uuid.UUID, exp models.Exposure) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE images SET aperture = $1, shutter_speed = $2, iso = $3, date_taken = $4 WHERE id = $5`,
		exp.Aperture, exp.ShutterSpeed, exp.ISO, exp.DateTaken, id)
	if err != nil {
		return fmt.Errorf("update image exposure: %w", err)
	}
	if n := tag.RowsAffected(); n != 1 {
		return fmt.Errorf("update image exposure %s: %d rows affected, want 1", id, n)
	}
	return nil
}

// --- Persons ---

func (s *PostgresStore) AddPerson(ctx context.Context, name string) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := s.pool.Exec(ctx, `INSERT INTO persons (id, name) VALUES ($1, $2)`, id, name); err != nil {
		return uuid.Nil, fmt.Errorf("add person: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}

	p.Encodings, err = s.EncodingsForPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) PersonByName(ctx context.Context, name string) (*models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at FROM persons WHERE name = $1 LIMIT 2`, name)
	if err != nil {
		return nil, fmt.Errorf("person by name: %w", err)
	}
	people, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Person, error) {
		var p models.Person
		err := row.Scan(&p.ID, &p.Name, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("person by name: %w", err)
	}

	switch len(people) {
	case 0:
		return nil, ErrNotFound
	case 1:
	default:
		return nil, fmt.Errorf("person by name %q: %w", name, ErrAmbiguousName)
	}

	p := &people[0]
	p.Encodings, err = s.EncodingsForPerson(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AllPeople returns every person with its full encoding set.
func (s *PostgresStore) AllPeople(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM persons ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("all people: %w", err)
	}
	people, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Person, error) {
		var p models.Person
		err := row.Scan(&p.ID, &p.Name, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("all people: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT pe.person_id, e.id, e.vector, e.created_at
		 FROM person_encodings pe
		 JOIN encodings e ON e.id = pe.encoding_id
		 ORDER BY pe.person_id, pe.position, e.id`)
	if err != nil {
		return nil, fmt.Errorf("all people encodings: %w", err)
	}
	defer rows.Close()

	byPerson := make(map[uuid.UUID][]models.Encoding)
	for rows.Next() {
		var personID uuid.UUID
		var enc models.Encoding
		var vec pgvector.Vector
		if err := rows.Scan(&personID, &enc.ID, &vec, &enc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person encoding: %w", err)
		}
		enc.Vector = vec.Slice()
		byPerson[personID] = append(byPerson[personID], enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all people encodings: %w", err)
	}

	for i := range people {
		people[i].Encodings = byPerson[people[i].ID]
	}
	return people, nil
}

// --- Encodings ---

func insertEncoding(ctx context.Context, q querier, vector []float32) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := q.Exec(ctx,
		`INSERT INTO encodings (id, vector) VALUES ($1, $2)`, id, pgvector.NewVector(vector)); err != nil {
		return uuid.Nil, fmt.Errorf("insert encoding: %w", err)
	}
	return id, nil
}

// AddEncoding stores a new encoding and links it to exactly one target.
func (s *PostgresStore) AddEncoding(ctx context.Context, vector []float32, target uuid.UUID, kind models.AssociationKind) (uuid.UUID, error) {
	if err := checkKind(kind, target); err != nil {
		return uuid.Nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("add encoding: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	id, err := insertEncoding(ctx, tx, vector)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := linkEncoding(ctx, tx, id, target, kind); err != nil {
		return uuid.Nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("add encoding: commit: %w", err)
	}
	return id, nil
}

func linkTable(kind models.AssociationKind) (table, column string) {
	if kind == models.AssociateImage {
		return "image_encodings", "image_id"
	}
	return "person_encodings", "person_id"
}

func linkEncoding(ctx context.Context, q querier, encodingID, target uuid.UUID, kind models.AssociationKind) (uuid.UUID, error) {
	table, column := linkTable(kind)

	id := uuid.New()
	err := q.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %[1]s (id, %[2]s, encoding_id, position)
		 SELECT $1::uuid, $2::uuid, $3::uuid, COALESCE(MAX(position) + 1, 0) FROM %[1]s WHERE %[2]s = $2::uuid
		 ON CONFLICT (%[2]s, encoding_id) DO NOTHING
		 RETURNING id`, table, column),
		id, target, encodingID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) && !isUniqueViolation(err) {
		return uuid.Nil, fmt.Errorf("link encoding: %w", err)
	}

	err = q.QueryRow(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE %s = $1 AND encoding_id = $2`, table, column),
		target, encodingID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("read existing link: %w", err)
	}
	return id, nil
}

// LinkEncoding associates an existing encoding with a target and returns the
// link id. Linking an already linked pair returns the existing link.
func (s *PostgresStore) LinkEncoding(ctx context.Context, encodingID, target uuid.UUID, kind models.AssociationKind) (uuid.UUID, error) {
	if err := checkKind(kind, target); err != nil {
		return uuid.Nil, err
	}
	return linkEncoding(ctx, s.pool, encodingID, target, kind)
}

func (s *PostgresStore) scanEncodings(ctx context.Context, query string, id uuid.UUID) ([]models.Encoding, error) {
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Encoding, error) {
		var enc models.Encoding
		var vec pgvector.Vector
		if err := row.Scan(&enc.ID, &vec, &enc.CreatedAt); err != nil {
			return enc, err
		}
		enc.Vector = vec.Slice()
		return enc, nil
	})
}

func (s *PostgresStore) EncodingsForImage(ctx context.Context, imageID uuid.UUID) ([]models.Encoding, error) {
	encs, err := s.scanEncodings(ctx,
		`SELECT e.id, e.vector, e.created_at
		 FROM image_encodings ie JOIN encodings e ON e.id = ie.encoding_id
		 WHERE ie.image_id = $1 ORDER BY ie.position, e.id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("encodings for image: %w", err)
	}
	return encs, nil
}

func (s *PostgresStore) EncodingsForPerson(ctx context.Context, personID uuid.UUID) ([]models.Encoding, error) {
	encs, err := s.scanEncodings(ctx,
		`SELECT e.id, e.vector, e.created_at
		 FROM person_encodings pe JOIN encodings e ON e.id = pe.encoding_id
		 WHERE pe.person_id = $1 ORDER BY pe.position, e.id`, personID)
	if err != nil {
		return nil, fmt.Errorf("encodings for person: %w", err)
	}
	return encs, nil
}

// ImagesForPerson returns the distinct paths of images containing an
// encoding linked to the person.
func (s *PostgresStore) ImagesForPerson(ctx context.Context, personID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT i.path
		 FROM person_encodings pe
		 JOIN image_encodings ie ON ie.encoding_id = pe.encoding_id
		 JOIN images i ON i.id = ie.image_id
		 WHERE pe.person_id = $1
		 ORDER BY i.path`, personID)
	if err != nil {
		return nil, fmt.Errorf("images for person: %w", err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("images for person: %w", err)
	}
	return paths, nil
}

// --- Reports ---

func (s *PostgresStore) FaceHistogram(ctx context.Context) ([]models.FaceHistogramRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT faces, COUNT(*) FROM (
		     SELECT i.id, COUNT(ie.encoding_id) AS faces
		     FROM images i LEFT JOIN image_encodings ie ON ie.image_id = i.id
		     GROUP BY i.id
		 ) per_image
		 GROUP BY faces ORDER BY faces`)
	if err != nil {
		return nil, fmt.Errorf("face histogram: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.FaceHistogramRow, error) {
		var r models.FaceHistogramRow
		err := row.Scan(&r.Faces, &r.Images)
		return r, err
	})
}

func (s *PostgresStore) ImagesPerPerson(ctx context.Context) ([]models.PersonImagesRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.name, COUNT(DISTINCT ie.image_id)
		 FROM persons p
		 JOIN person_encodings pe ON pe.person_id = p.id
		 JOIN image_encodings ie ON ie.encoding_id = pe.encoding_id
		 GROUP BY p.id, p.name
		 ORDER BY 2 DESC, p.name`)
	if err != nil {
		return nil, fmt.Errorf("images per person: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PersonImagesRow, error) {
		var r models.PersonImagesRow
		err := row.Scan(&r.PersonName, &r.Images)
		return r, err
	})
}

func (s *PostgresStore) Timeline(ctx context.Context) ([]models.TimelineRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(date_taken AT TIME ZONE 'UTC', 'YYYY-MM') AS period, COUNT(*)
		 FROM images WHERE date_taken IS NOT NULL
		 GROUP BY period ORDER BY period`)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TimelineRow, error) {
		var r models.TimelineRow
		err := row.Scan(&r.Period, &r.Images)
		return r, err
	})
}

func (s *PostgresStore) ExposureFrequencies(ctx context.Context) ([]models.ExposureRow, error) {
	var out []models.ExposureRow
	for _, field := range exposureFields {
		rows, err := s.pool.Query(ctx, fmt.Sprintf(
			`SELECT %[1]s::double precision, COUNT(*) FROM images
			 WHERE %[1]s IS NOT NULL GROUP BY %[1]s ORDER BY %[1]s`, field))
		if err != nil {
			return nil, fmt.Errorf("exposure %s: %w", field, err)
		}
		counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (valueCount, error) {
			var vc valueCount
			err := row.Scan(&vc.value, &vc.images)
			return vc, err
		})
		if err != nil {
			return nil, fmt.Errorf("exposure %s: %w", field, err)
		}
		out = append(out, exposureRows(field, counts)...)
	}
	return out, nil
}
