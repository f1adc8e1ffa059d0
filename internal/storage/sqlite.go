package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wlockwood/lits/internal/models"
)

// Row types mirror the PostgreSQL schema. Timestamps that take part in
// equality lookups or grouping are kept as unix seconds.

type imageRow struct {
	ID           string `gorm:"primaryKey;type:text"`
	Filename     string `gorm:"not null;uniqueIndex:images_identity_key,priority:1"`
	Path         string `gorm:"not null"`
	ModifiedAt   int64  `gorm:"not null;uniqueIndex:images_identity_key,priority:2"`
	SizeBytes    int64  `gorm:"not null;uniqueIndex:images_identity_key,priority:3"`
	Aperture     *float64
	ShutterSpeed *float64
	ISO          *int   `gorm:"column:iso"`
	DateTaken    *int64 `gorm:"column:date_taken"`
	CreatedAt    time.Time
}

func (imageRow) TableName() string { return "images" }

type personRow struct {
	ID        string `gorm:"primaryKey;type:text"`
	Name      string `gorm:"not null;index"`
	CreatedAt time.Time
}

func (personRow) TableName() string { return "persons" }

type encodingRow struct {
	ID        string          `gorm:"primaryKey;type:text"`
	Vector    pgvector.Vector `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (encodingRow) TableName() string { return "encodings" }

type imageEncodingRow struct {
	ID         string `gorm:"primaryKey;type:text"`
	ImageID    string `gorm:"type:text;not null;uniqueIndex:image_encodings_pair,priority:1"`
	EncodingID string `gorm:"type:text;not null;uniqueIndex:image_encodings_pair,priority:2;index"`
	Position   int    `gorm:"not null"`
}

func (imageEncodingRow) TableName() string { return "image_encodings" }

type personEncodingRow struct {
	ID         string `gorm:"primaryKey;type:text"`
	PersonID   string `gorm:"type:text;not null;uniqueIndex:person_encodings_pair,priority:1"`
	EncodingID string `gorm:"type:text;not null;uniqueIndex:person_encodings_pair,priority:2;index"`
	Position   int    `gorm:"not null"`
}

func (personEncodingRow) TableName() string { return "person_encodings" }

// SQLiteStore is the single-file store used by the CLI by default.
type SQLiteStore struct {
	db *gorm.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the schema. ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string, debug bool) (*SQLiteStore, error) {
	level := logger.Silent
	if debug {
		level = logger.Warn
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// One connection: the store has a single writer and ":memory:" databases
	// are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&imageRow{}, &personRow{}, &encodingRow{}, &imageEncodingRow{}, &personEncodingRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func parseID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func toUnix(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.UTC().Unix()
	return &u
}

func fromUnix(u *int64) *time.Time {
	if u == nil {
		return nil
	}
	t := time.Unix(*u, 0).UTC()
	return &t
}

func (r imageRow) model() *models.Image {
	return &models.Image{
		ID:         parseID(r.ID),
		Filename:   r.Filename,
		Path:       r.Path,
		ModifiedAt: time.Unix(r.ModifiedAt, 0).UTC(),
		SizeBytes:  r.SizeBytes,
		Exposure: models.Exposure{
			Aperture:     r.Aperture,
			ShutterSpeed: r.ShutterSpeed,
			ISO:          r.ISO,
			DateTaken:    fromUnix(r.DateTaken),
		},
		CreatedAt: r.CreatedAt,
	}
}

// --- Images ---

func sqliteFindImage(db *gorm.DB, key models.IdentityKey) (uuid.UUID, error) {
	key = key.Normalize()
	var ids []string
	err := db.Model(&imageRow{}).
		Where("filename = ? AND modified_at = ? AND size_bytes = ?", key.Filename, key.ModifiedAt.Unix(), key.SizeBytes).
		Limit(2).
		Pluck("id", &ids).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("find image: %w", err)
	}

	switch len(ids) {
	case 0:
		return uuid.Nil, ErrNotFound
	case 1:
		return parseID(ids[0]), nil
	default:
		return uuid.Nil, fmt.Errorf("find image %q: %w", key.Filename, ErrMultipleMatches)
	}
}

func (s *SQLiteStore) FindImage(ctx context.Context, key models.IdentityKey) (uuid.UUID, error) {
	return sqliteFindImage(s.db.WithContext(ctx), key)
}

func (s *SQLiteStore) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	var row imageRow
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return row.model(), nil
}

func sqliteInsertImage(db *gorm.DB, img *models.Image) (uuid.UUID, error) {
	key := img.Identity()
	row := imageRow{
		ID:           uuid.New().String(),
		Filename:     key.Filename,
		Path:         img.Path,
		ModifiedAt:   key.ModifiedAt.Unix(),
		SizeBytes:    key.SizeBytes,
		Aperture:     img.Aperture,
		ShutterSpeed: img.ShutterSpeed,
		ISO:          img.ISO,
		DateTaken:    toUnix(img.DateTaken),
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return uuid.Nil, fmt.Errorf("insert image: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return uuid.Nil, fmt.Errorf("insert image %q: %w", key.Filename, ErrConflict)
	}

	img.ID = parseID(row.ID)
	img.ModifiedAt = key.ModifiedAt
	img.CreatedAt = row.CreatedAt
	return img.ID, nil
}

func (s *SQLiteStore) InsertImage(ctx context.Context, img *models.Image) (uuid.UUID, error) {
	return sqliteInsertImage(s.db.WithContext(ctx), img)
}

func (s *SQLiteStore) AddImage(ctx context.Context, img *models.Image, vectors [][]float32) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = sqliteFindImage(tx, img.Identity())
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		id, err = sqliteInsertImage(tx, img)
		if errors.Is(err, ErrConflict) {
			id, err = sqliteFindImage(tx, img.Identity())
			return err
		}
		if err != nil {
			return err
		}

		for i, vec := range vectors {
			enc := encodingRow{ID: uuid.New().String(), Vector: pgvector.NewVector(vec)}
			if err := tx.Create(&enc).Error; err != nil {
				return fmt.Errorf("insert encoding: %w", err)
			}
			link := imageEncodingRow{ID: uuid.New().String(), ImageID: id.String(), EncodingID: enc.ID, Position: i}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("link image encoding: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *SQLiteStore) UpdateImageExposure(ctx context.Context, id uuid.UUID, exp models.Exposure) error {
	res := s.db.WithContext(ctx).Model(&imageRow{}).Where("id = ?", id.String()).Updates(map[string]any{
		"aperture":      exp.Aperture,
		"shutter_speed": exp.ShutterSpeed,
		"iso":           exp.ISO,
		"date_taken":    toUnix(exp.DateTaken),
	})
	if res.Error != nil {
		return fmt.Errorf("update image exposure: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("update image exposure %s: %d rows affected, want 1", id, res.RowsAffected)
	}
	return nil
}

// --- Persons ---

func (s *SQLiteStore) AddPerson(ctx context.Context, name string) (uuid.UUID, error) {
	row := personRow{ID: uuid.New().String(), Name: name}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("add person: %w", err)
	}
	return parseID(row.ID), nil
}

func (s *SQLiteStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	var row personRow
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}

	p := &models.Person{ID: id, Name: row.Name, CreatedAt: row.CreatedAt}
	if p.Encodings, err = s.EncodingsForPerson(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) PersonByName(ctx context.Context, name string) (*models.Person, error) {
	var rows []personRow
	if err := s.db.WithContext(ctx).Where("name = ?", name).Limit(2).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("person by name: %w", err)
	}

	switch len(rows) {
	case 0:
		return nil, ErrNotFound
	case 1:
	default:
		return nil, fmt.Errorf("person by name %q: %w", name, ErrAmbiguousName)
	}

	p := &models.Person{ID: parseID(rows[0].ID), Name: rows[0].Name, CreatedAt: rows[0].CreatedAt}
	var err error
	if p.Encodings, err = s.EncodingsForPerson(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) AllPeople(ctx context.Context) ([]models.Person, error) {
	db := s.db.WithContext(ctx)

	var rows []personRow
	if err := db.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("all people: %w", err)
	}

	var linked []struct {
		PersonID  string
		ID        string
		Vector    pgvector.Vector
		CreatedAt time.Time
	}
	err := db.Raw(`SELECT pe.person_id, e.id, e.vector, e.created_at
		FROM person_encodings pe JOIN encodings e ON e.id = pe.encoding_id
		ORDER BY pe.person_id, pe.position, e.id`).Scan(&linked).Error
	if err != nil {
		return nil, fmt.Errorf("all people encodings: %w", err)
	}

	byPerson := make(map[string][]models.Encoding)
	for _, l := range linked {
		byPerson[l.PersonID] = append(byPerson[l.PersonID], models.Encoding{
			ID: parseID(l.ID), Vector: l.Vector.Slice(), CreatedAt: l.CreatedAt,
		})
	}

	people := make([]models.Person, 0, len(rows))
	for _, r := range rows {
		people = append(people, models.Person{
			ID: parseID(r.ID), Name: r.Name, CreatedAt: r.CreatedAt, Encodings: byPerson[r.ID],
		})
	}
	return people, nil
}

// --- Encodings ---

func (s *SQLiteStore) AddEncoding(ctx context.Context, vector []float32, target uuid.UUID, kind models.AssociationKind) (uuid.UUID, error) {
	if err := checkKind(kind, target); err != nil {
		return uuid.Nil, err
	}

	enc := encodingRow{ID: uuid.New().String(), Vector: pgvector.NewVector(vector)}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&enc).Error; err != nil {
			return fmt.Errorf("insert encoding: %w", err)
		}
		_, err := sqliteLinkEncoding(tx, parseID(enc.ID), target, kind)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return parseID(enc.ID), nil
}

func sqliteLinkEncoding(tx *gorm.DB, encodingID, target uuid.UUID, kind models.AssociationKind) (uuid.UUID, error) {
	table, column := linkTable(kind)

	var existing []string
	err := tx.Table(table).Where(column+" = ? AND encoding_id = ?", target.String(), encodingID.String()).
		Limit(1).Pluck("id", &existing).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("read existing link: %w", err)
	}
	if len(existing) == 1 {
		return parseID(existing[0]), nil
	}

	var position int
	err = tx.Table(table).Where(column+" = ?", target.String()).
		Select("COALESCE(MAX(position) + 1, 0)").Scan(&position).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("link position: %w", err)
	}

	id := uuid.New().String()
	var res *gorm.DB
	if kind == models.AssociateImage {
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&imageEncodingRow{
			ID: id, ImageID: target.String(), EncodingID: encodingID.String(), Position: position,
		})
	} else {
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&personEncodingRow{
			ID: id, PersonID: target.String(), EncodingID: encodingID.String(), Position: position,
		})
	}
	if res.Error != nil {
		return uuid.Nil, fmt.Errorf("link encoding: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// A pair inserted after our read. Treat it as already linked.
		err = tx.Table(table).Where(column+" = ? AND encoding_id = ?", target.String(), encodingID.String()).
			Limit(1).Pluck("id", &existing).Error
		if err != nil || len(existing) == 0 {
			return uuid.Nil, fmt.Errorf("read existing link: %w", errors.Join(ErrConflict, err))
		}
		return parseID(existing[0]), nil
	}
	return parseID(id), nil
}

func (s *SQLiteStore) LinkEncoding(ctx context.Context, encodingID, target uuid.UUID, kind models.AssociationKind) (uuid.UUID, error) {
	if err := checkKind(kind, target); err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = sqliteLinkEncoding(tx, encodingID, target, kind)
		return err
	})
	return id, err
}

func (s *SQLiteStore) joinedEncodings(ctx context.Context, table, column string, id uuid.UUID) ([]models.Encoding, error) {
	var rows []encodingRow
	err := s.db.WithContext(ctx).
		Table("encodings e").
		Select("e.id, e.vector, e.created_at").
		Joins(fmt.Sprintf("JOIN %s l ON l.encoding_id = e.id", table)).
		Where(fmt.Sprintf("l.%s = ?", column), id.String()).
		Order("l.position, e.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	encs := make([]models.Encoding, 0, len(rows))
	for _, r := range rows {
		encs = append(encs, models.Encoding{ID: parseID(r.ID), Vector: r.Vector.Slice(), CreatedAt: r.CreatedAt})
	}
	return encs, nil
}

func (s *SQLiteStore) EncodingsForImage(ctx context.Context, imageID uuid.UUID) ([]models.Encoding, error) {
	encs, err := s.joinedEncodings(ctx, "image_encodings", "image_id", imageID)
	if err != nil {
		return nil, fmt.Errorf("encodings for image: %w", err)
	}
	return encs, nil
}

func (s *SQLiteStore) EncodingsForPerson(ctx context.Context, personID uuid.UUID) ([]models.Encoding, error) {
	encs, err := s.joinedEncodings(ctx, "person_encodings", "person_id", personID)
	if err != nil {
		return nil, fmt.Errorf("encodings for person: %w", err)
	}
	return encs, nil
}

func (s *SQLiteStore) ImagesForPerson(ctx context.Context, personID uuid.UUID) ([]string, error) {
	var paths []string
	err := s.db.WithContext(ctx).Raw(`SELECT DISTINCT i.path
		FROM person_encodings pe
		JOIN image_encodings ie ON ie.encoding_id = pe.encoding_id
		JOIN images i ON i.id = ie.image_id
		WHERE pe.person_id = ?
		ORDER BY i.path`, personID.String()).Scan(&paths).Error
	if err != nil {
		return nil, fmt.Errorf("images for person: %w", err)
	}
	return paths, nil
}

// --- Reports ---

func (s *SQLiteStore) FaceHistogram(ctx context.Context) ([]models.FaceHistogramRow, error) {
	var rows []models.FaceHistogramRow
	err := s.db.WithContext(ctx).Raw(`SELECT faces, COUNT(*) AS images FROM (
			SELECT i.id, COUNT(ie.encoding_id) AS faces
			FROM images i LEFT JOIN image_encodings ie ON ie.image_id = i.id
			GROUP BY i.id
		) GROUP BY faces ORDER BY faces`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("face histogram: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) ImagesPerPerson(ctx context.Context) ([]models.PersonImagesRow, error) {
	var rows []models.PersonImagesRow
	err := s.db.WithContext(ctx).Raw(`SELECT p.name AS person_name, COUNT(DISTINCT ie.image_id) AS images
		FROM persons p
		JOIN person_encodings pe ON pe.person_id = p.id
		JOIN image_encodings ie ON ie.encoding_id = pe.encoding_id
		GROUP BY p.id, p.name
		ORDER BY images DESC, p.name`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("images per person: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) Timeline(ctx context.Context) ([]models.TimelineRow, error) {
	var rows []models.TimelineRow
	err := s.db.WithContext(ctx).Raw(`SELECT strftime('%Y-%m', date_taken, 'unixepoch') AS period, COUNT(*) AS images
		FROM images WHERE date_taken IS NOT NULL
		GROUP BY period ORDER BY period`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) ExposureFrequencies(ctx context.Context) ([]models.ExposureRow, error) {
	var out []models.ExposureRow
	for _, field := range exposureFields {
		var counts []struct {
			Value  float64
			Images int
		}
		err := s.db.WithContext(ctx).Raw(fmt.Sprintf(
			`SELECT %[1]s AS value, COUNT(*) AS images FROM images
			 WHERE %[1]s IS NOT NULL GROUP BY %[1]s ORDER BY %[1]s`, field)).Scan(&counts).Error
		if err != nil {
			return nil, fmt.Errorf("exposure %s: %w", field, err)
		}

		vcs := make([]valueCount, 0, len(counts))
		for _, c := range counts {
			vcs = append(vcs, valueCount{value: c.Value, images: c.Images})
		}
		out = append(out, exposureRows(field, vcs)...)
	}
	return out, nil
}
