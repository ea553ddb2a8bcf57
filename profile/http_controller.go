// Package profile serves the authenticated user's own profile and photo.
package profile

import (
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"

	"github.com/safebite/safebite-api/auth"
	"github.com/safebite/safebite-api/logging"
	"github.com/safebite/safebite-api/storage"
)

const (
	DefaultMaxFileSize = 5 * 1024 * 1024
	PhotoFormField     = "photo"
)

var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/jpg", "image/webp"}

var (
	ErrProfileNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
				WithTextCode(auth.TextCodeUserNotFound).
				WithCode(goerrors.CodeNotFound)
	ErrNoFile = goerrors.New("no file uploaded", goerrors.CategoryBadInput).
			WithTextCode("FILE_MISSING").
			WithCode(goerrors.CodeBadRequest)
	ErrFileTooLarge = goerrors.New("file too large", goerrors.CategoryBadInput).
			WithTextCode("FILE_TOO_LARGE").
			WithCode(goerrors.CodeBadRequest)
	ErrFileType = goerrors.New("file type not allowed", goerrors.CategoryBadInput).
			WithTextCode("FILE_TYPE_NOT_ALLOWED").
			WithCode(goerrors.CodeBadRequest)
	errUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
				WithTextCode("UNAUTHENTICATED").
				WithCode(goerrors.CodeUnauthorized)
)

// RegisterProfileRoutes mounts on fiber directly since the photo route needs
// its multipart parser.
func RegisterProfileRoutes(app fiber.Router, gate fiber.Handler, opts ...ProfileControllerOption) *ProfileController {
	controller := NewProfileController(opts...)

	app.Get(controller.Routes.Profile, gate, controller.Show).Name("users.profile.get")
	app.Put(controller.Routes.Profile, gate, controller.Update).Name("users.profile.update")
	app.Put(controller.Routes.Photo, gate, controller.UploadPhoto).Name("users.profile.photo")

	return controller
}

type ProfileControllerRoutes struct {
	Profile string
	Photo   string
}

type ProfileController struct {
	Repo         auth.RepositoryManager
	Store        storage.PhotoStore
	Logger       logging.Logger
	MaxFileSize  int64
	AllowedTypes []string
	Routes       *ProfileControllerRoutes
	now          func() time.Time
}

type ProfileControllerOption func(*ProfileController) *ProfileController

func WithRepository(repo auth.RepositoryManager) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		c.Repo = repo
		return c
	}
}

func WithPhotoStore(store storage.PhotoStore) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		c.Store = store
		return c
	}
}

func WithLogger(logger logging.Logger) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithUploadLimits sets the maximum photo size and accepted MIME types.
func WithUploadLimits(maxSize int64, allowed []string) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		if maxSize > 0 {
			c.MaxFileSize = maxSize
		}
		if len(allowed) > 0 {
			c.AllowedTypes = allowed
		}
		return c
	}
}

func WithClock(now func() time.Time) ProfileControllerOption {
	return func(c *ProfileController) *ProfileController {
		if now != nil {
			c.now = now
		}
		return c
	}
}

func NewProfileController(opts ...ProfileControllerOption) *ProfileController {
	c := &ProfileController{
		Logger:       logging.Nop(),
		MaxFileSize:  DefaultMaxFileSize,
		AllowedTypes: DefaultAllowedTypes,
		Routes: &ProfileControllerRoutes{
			Profile: "/profile",
			Photo:   "/profile/photo",
		},
		now: time.Now,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in profile controller...")
	}

	if c.Store == nil {
		panic("Missing PhotoStore in profile controller...")
	}

	return c
}

// PhotoURL resolves stored photo references to absolute URLs.
func (p *ProfileController) PhotoURL(ref string) string {
	return p.Store.URL(storage.KeyFromReference(ref))
}

func (p *ProfileController) currentUser(c *fiber.Ctx) (*auth.User, error) {
	identity, ok := auth.IdentityFromFiber(c)
	if !ok {
		return nil, errUnauthenticated
	}

	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return nil, ErrProfileNotFound
	}

	user, err := p.Repo.Users().GetByID(c.UserContext(), id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return user, nil
}

func (p *ProfileController) Show(c *fiber.Ctx) error {
	user, err := p.currentUser(c)
	if err != nil {
		return err
	}

	return auth.RespondFiber(c, fiber.StatusOK, "profile retrieved successfully", fiber.Map{
		"user": user.Public(p.PhotoURL),
	})
}

func (p *ProfileController) Update(c *fiber.Ctx) error {
	payload := new(UpdateProfileRequest)
	if err := c.BodyParser(payload); err != nil {
		return auth.WithFields(auth.ErrInvalidBody, err, auth.FieldError{Field: "body", Message: "request body must be valid JSON"})
	}

	update, err := payload.Decode()
	if err != nil {
		return err
	}

	user, err := p.currentUser(c)
	if err != nil {
		return err
	}

	update.Apply(user)

	if _, err := p.Repo.Users().UpdateProfile(c.UserContext(), user, update.Columns()...); err != nil {
		return err
	}

	return auth.RespondFiber(c, fiber.StatusOK, "profile updated successfully", fiber.Map{
		"user": user.Public(p.PhotoURL),
	})
}

func (p *ProfileController) UploadPhoto(c *fiber.Ctx) error {
	fh, err := c.FormFile(PhotoFormField)
	if err != nil || fh == nil {
		return ErrNoFile
	}

	if fh.Size > p.MaxFileSize {
		return ErrFileTooLarge
	}

	contentType := strings.ToLower(strings.TrimSpace(fh.Header.Get(fiber.HeaderContentType)))
	if !slices.Contains(p.AllowedTypes, contentType) {
		return auth.WithFields(ErrFileType, nil, auth.FieldError{
			Field:   PhotoFormField,
			Message: "allowed types: " + strings.Join(p.AllowedTypes, ", "),
		})
	}

	user, err := p.currentUser(c)
	if err != nil {
		return err
	}

	file, err := fh.Open()
	if err != nil {
		return auth.Internal(err, "failed to read upload")
	}
	defer file.Close()

	ctx := c.UserContext()
	key := storage.PhotoKey(contentType, p.now())
	if err := p.Store.Save(ctx, key, file, fh.Size, contentType); err != nil {
		return auth.Internal(err, "failed to store photo")
	}

	previous := user.ProfilePhoto
	user.ProfilePhoto = &key

	if _, err := p.Repo.Users().UpdateProfile(ctx, user, "profile_photo"); err != nil {
		if delErr := p.Store.Delete(ctx, key); delErr != nil {
			p.Logger.Error("failed to remove orphaned photo %s: %v", key, delErr)
		}
		return err
	}

	if previous != nil && *previous != "" {
		old := storage.KeyFromReference(*previous)
		if err := p.Store.Delete(ctx, old); err != nil {
			p.Logger.Warn("failed to delete previous photo %s: %v", old, err)
		}
	}

	return auth.RespondFiber(c, fiber.StatusOK, "profile photo updated successfully", fiber.Map{
		"user": fiber.Map{
			"id":                 user.ID.String(),
			"profile_photo":      p.Store.URL(key),
			"profile_photo_path": p.Store.Path(key),
		},
	})
}
