package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAmbiguousEmail     = errors.New("several users share this email")

	welcomeEmailTemplate = "welcome"
	welcomeEmailSubject  = "Welcome!"

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers returns the users matching filter, by ascending ID unless ordering says otherwise.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		EmailExists(ctx context.Context, email string) (bool, error)
		UpdatePassword(ctx context.Context, id int, hash []byte) error
	}

	Service interface {
		QueryAll(ctx context.Context, ordering ...core.DBOrdering) ([]User, error)
		Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
	}

	// Options toggles the optional behaviours of the user Service.
	Options struct {
		UniqueEmail      bool
		SendWelcomeEmail bool
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		opts    Options
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, opts Options) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		opts:    opts,
	}
}

// NewServiceOptions reads the user Service Options from conf.
func NewServiceOptions(conf *core.Config) Options {
	return Options{
		UniqueEmail:      conf.Users.UniqueEmail,
		SendWelcomeEmail: conf.Users.SendWelcomeEmail,
	}
}

// Create stores a new User from validated data.
// Duplicate emails are only rejected when Options.UniqueEmail is set.
func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	if svc.opts.UniqueEmail {
		exists, err := svc.repo.EmailExists(ctx, nu.Email)
		if err != nil {
			return User{}, errors.Wrap(err, "checking email uniqueness")
		}
		if exists {
			return User{}, core.NewFieldValidationError("email", ErrEmailExists)
		}
	}

	role := nu.Role
	if role == "" {
		role = DefaultRole
	}
	usr := User{
		Email:     nu.Email,
		Name:      null.NewString(nu.Name, core.CleanString(nu.Name) != ""),
		Role:      role,
		CreatedAt: nowFunc(),
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, core.NewFieldValidationError("email", ErrEmailExists)
		}
		return User{}, errors.Wrap(err, "inserting user")
	}

	if svc.opts.SendWelcomeEmail {
		svc.sendWelcomeEmail(usr)
	}
	return usr, nil
}

func (svc *service) QueryAll(ctx context.Context, ordering ...core.DBOrdering) ([]User, error) {
	return svc.Filter(ctx, QueryFilter{}, ordering...)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	users, err := svc.repo.QueryUsers(ctx, filter, ordering...)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Authenticate returns the user matching email and pwd.
// Since emails may be shared, every user with that email is tried, oldest first.
func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	users, err := svc.repo.QueryUsers(ctx, QueryFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return User{}, errors.Wrap(err, "querying users by email")
	}
	for _, usr := range users {
		if len(usr.PasswordHash) == 0 {
			continue
		}
		if usr.CheckPassword(pwd) == nil {
			return usr, nil
		}
	}
	return User{}, ErrInvalidCredentials
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	usr, err := svc.GetByID(ctx, rp.ID)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.UpdatePassword(ctx, usr.ID, usr.PasswordHash)
}

type welcomeData struct {
	Name  string
	Email string
	Role  string
}

func (svc *service) sendWelcomeEmail(usr User) {
	if svc.mailSvc == nil {
		return
	}
	name := usr.DisplayName()
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: core.CleanString(usr.Name.String), Address: usr.Email}},
		Subject:      welcomeEmailSubject,
		TemplateName: welcomeEmailTemplate,
		TemplateData: welcomeData{Name: name, Email: usr.Email, Role: core.CleanString(usr.Role, true /* lower */)},
	})
}
