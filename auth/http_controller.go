package auth

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	msgRegistered        = "user registered successfully"
	msgLoggedIn          = "login successful"
	msgRefreshed         = "token refreshed successfully"
	msgResetRequested    = "if the email is registered, you will receive password reset instructions"
	msgResetTokenValid   = "valid token"
	msgPasswordReset     = "password reset successfully"
	msgVerificationSent  = "if the email is registered, you will receive a verification email"
	msgAlreadyVerified   = "email already verified"
	msgEmailVerified     = "email verified successfully"
	msgEmailWasVerified  = "email was already verified"
	msgAuthenticated     = "authenticated"
	msgAnonymous         = "anonymous"
	msgInvalidJSONDetail = "request body must be valid JSON"
)

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.Register).SetName("auth.register")
	app.Post(controller.Routes.Login, controller.Login).SetName("auth.login")
	app.Post(controller.Routes.Refresh, controller.Refresh).SetName("auth.refresh")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).SetName("auth.forgot-password")
	app.Post(controller.Routes.VerifyResetToken, controller.VerifyResetToken).SetName("auth.verify-reset-token")
	app.Post(controller.Routes.ResetPassword, controller.ResetPassword).SetName("auth.reset-password")
	app.Post(controller.Routes.SendVerification, controller.SendVerificationEmail).SetName("auth.send-verification-email")
	app.Post(controller.Routes.VerifyEmail, controller.VerifyEmail).SetName("auth.verify-email")

	if controller.OptionalAuth != nil {
		app.Get(controller.Routes.Me, controller.Me, controller.OptionalAuth).SetName("auth.me")
	}

	return controller
}

type AuthControllerRoutes struct {
	Register         string
	Login            string
	Refresh          string
	ForgotPassword   string
	VerifyResetToken string
	ResetPassword    string
	SendVerification string
	VerifyEmail      string
	Me               string
}

type AuthController struct {
	Debug        bool
	UseHashid    bool
	Logger       Logger
	Repo         RepositoryManager
	Tokens       *TokenService
	Generator    *TokenGenerator
	Machine      AccountStateMachine
	Mailer       Mailer
	PhotoURL     PhotoURLResolver
	OptionalAuth router.MiddlewareFunc
	Routes       *AuthControllerRoutes

	register         *RegisterUserHandler
	login            *LoginHandler
	refresh          *RefreshTokenHandler
	resetInitialize  *InitializePasswordResetHandler
	resetVerify      *VerifyPasswordResetHandler
	resetFinalize    *FinalizePasswordResetHandler
	verificationReq  *AccountVerificationRequestHandler
	verificationDone *VerifyEmailHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithRepository(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithTokenService(tokens *TokenService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Tokens = tokens
		return c
	}
}

// WithTokenGenerator sets the generator, and so the clock, behind flow tokens.
func WithTokenGenerator(generator *TokenGenerator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Generator = generator
		return c
	}
}

func WithMailer(mailer Mailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mailer = mailer
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithPhotoURLResolver(resolve PhotoURLResolver) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.PhotoURL = resolve
		return c
	}
}

// WithOptionalAuth mounts the who-am-i route behind the given middleware.
func WithOptionalAuth(handler router.MiddlewareFunc) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.OptionalAuth = handler
		return c
	}
}

func WithHashidIdentifiers(enabled bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.UseHashid = enabled
		return c
	}
}

func WithDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger(),
		Routes: &AuthControllerRoutes{
			Register:         "/register",
			Login:            "/login",
			Refresh:          "/refresh",
			ForgotPassword:   "/forgot-password",
			VerifyResetToken: "/verify-reset-token",
			ResetPassword:    "/reset-password",
			SendVerification: "/send-verification-email",
			VerifyEmail:      "/verify-email",
			Me:               "/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	if c.Generator == nil {
		c.Generator = NewTokenGenerator()
	}

	if c.Machine == nil {
		c.Machine = NewAccountStateMachine(c.Repo.Users(),
			WithStateMachineTokens(c.Generator),
			WithStateMachineLogger(c.Logger),
		)
	}

	c.register = NewRegisterUserHandler(c.Repo, c.Machine, c.Tokens).WithMailer(c.Mailer).WithLogger(c.Logger)
	c.login = NewLoginHandler(c.Repo, c.Tokens).WithLogger(c.Logger)
	c.refresh = NewRefreshTokenHandler(c.Repo, c.Tokens)
	c.resetInitialize = NewInitializePasswordResetHandler(c.Repo, c.Machine).WithMailer(c.Mailer).WithLogger(c.Logger)
	c.resetVerify = NewVerifyPasswordResetHandler(c.Repo, c.Machine)
	c.resetFinalize = NewFinalizePasswordResetHandler(c.Repo, c.Machine).WithLogger(c.Logger)
	c.verificationReq = NewAccountVerificationRequestHandler(c.Repo, c.Machine).WithMailer(c.Mailer).WithLogger(c.Logger)
	c.verificationDone = NewVerifyEmailHandler(c.Repo, c.Machine)

	return c
}

// BindJSON parses and validates the request body into payload.
func BindJSON(ctx router.Context, payload interface{ Validate() error }) error {
	if err := ctx.Bind(payload); err != nil {
		return WithFields(ErrInvalidBody, err, FieldError{Field: "body", Message: msgInvalidJSONDetail})
	}
	return payload.Validate()
}

func (a *AuthController) debug(label string, payload any) {
	if !a.Debug {
		return
	}
	a.Logger.Debug("======= AUTH %s ======\n%s", label, print.MaybePrettyJSON(payload))
}

func (a *AuthController) authData(resp *AuthResponse) fiber.Map {
	return fiber.Map{
		"user":         resp.User.Public(a.PhotoURL),
		"token":        resp.Tokens.AccessToken,
		"refreshToken": resp.Tokens.RefreshToken,
	}
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)
	if err := BindJSON(ctx, payload); err != nil {
		return err
	}

	a.debug("REGISTER", fiber.Map{"email": payload.Email, "full_name": payload.FullName})

	var resp *AuthResponse
	err := a.register.Execute(ctx.Context(), RegisterUserMessage{
		FullName:   payload.FullName,
		Email:      payload.Email,
		Password:   payload.Password,
		Phone:      payload.Phone,
		Age:        payload.Age,
		UseHashid:  a.UseHashid,
		OnResponse: func(r *AuthResponse) { resp = r },
	})
	if err != nil {
		return err
	}

	return Respond(ctx, fiber.StatusCreated, msgRegistered, a.authData(resp))
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := BindJSON(ctx, payload); err != nil {
		return err
	}

	a.debug("LOGIN", fiber.Map{"email": payload.Email})

	var resp *AuthResponse
	err := a.login.Execute(ctx.Context(), LoginMessage{
		Email:      payload.Email,
		Password:   payload.Password,
		OnResponse: func(r *AuthResponse) { resp = r },
	})
	if err != nil {
		return err
	}

	return Respond(ctx, fiber.StatusOK, msgLoggedIn, a.authData(resp))
}

func (a *AuthController) Refresh(ctx router.Context) error {
	payload := new(RefreshRequest)
	if err := BindJSON(ctx, payload); err != nil {
		return err
	}

	var tokens TokenPair
	err := a.refresh.Execute(ctx.Context(), RefreshTokenMessage{
		RefreshToken: payload.RefreshToken,
		OnResponse:   func(t TokenPair) { tokens = t },
	})
	if err != nil {
		return err
	}

	return Respond(ctx, fiber.StatusOK, msgRefreshed, tokens)
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := BindJSON(ctx, payload); err != nil {
		return err
	}

	err := a.resetInitialize.Execute(ctx.Context(), InitializePasswordResetMessage{
		Email: payload.Email,
	})
	if err != nil {
		return err
	}

	return Respond(ctx, fiber.StatusOK, msgResetRequested, nil)
}

func (a *AuthController) VerifyResetToken(ctx router.Context) error {
	payload := new(TokenRequest)
	if err := BindJSON(ctx, payload); err != nil {
		return err
	}

	var user *User
	err := a.resetVerify.Execute(ctx.Context(), VerifyPasswordResetMessage{
		Token:      payload.Token,
		OnResponse: func(u *User) { user = u },
	})
	if err != nil {
		return err
	}

	return Respond(ctx, fiber.StatusOK, msgResetTokenValid, fiber.Map{"email": user.Email})
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordRequest)
	if err := BindJSON(ctx, payload); err != nil {
		return err
	}

	err := a.resetFinalize.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	})
	if err != nil {
		return err
	}

	return Respond(ctx, fiber.StatusOK, msgPasswordReset, nil)
}

func (a *AuthController) SendVerificationEmail(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := BindJSON(ctx, payload); err != nil {
		return err
	}

	var resp *AccountVerificationRequestResponse
	err := a.verificationReq.Execute(ctx.Context(), AccountVerificationRequestMessage{
		Email:      payload.Email,
		OnResponse: func(r *AccountVerificationRequestResponse) { resp = r },
	})
	if err != nil {
		return err
	}

	if resp != nil && resp.AlreadyVerified {
		return Respond(ctx, fiber.StatusOK, msgAlreadyVerified, nil)
	}

	return Respond(ctx, fiber.StatusOK, msgVerificationSent, nil)
}

func (a *AuthController) VerifyEmail(ctx router.Context) error {
	payload := new(TokenRequest)
	if err := BindJSON(ctx, payload); err != nil {
		return err
	}

	var resp *VerifyEmailResponse
	err := a.verificationDone.Execute(ctx.Context(), VerifyEmailMessage{
		Token:      payload.Token,
		OnResponse: func(r *VerifyEmailResponse) { resp = r },
	})
	if err != nil {
		return err
	}

	message := msgEmailVerified
	if resp.AlreadyVerified {
		message = msgEmailWasVerified
	}

	return Respond(ctx, fiber.StatusOK, message, fiber.Map{
		"email":          resp.User.Email,
		"email_verified": true,
	})
}

// Me reports the caller identity, or null for anonymous requests.
func (a *AuthController) Me(ctx router.Context) error {
	identity, ok := IdentityFromRouter(ctx)
	if !ok {
		return Respond(ctx, fiber.StatusOK, msgAnonymous, fiber.Map{"user": nil})
	}
	return Respond(ctx, fiber.StatusOK, fmt.Sprintf("%s as %s", msgAuthenticated, identity.Email), fiber.Map{"user": identity})
}
