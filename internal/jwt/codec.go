package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Claims propias además de las registradas (sub, iat, exp, iss).
const (
	ClaimEmail   = "email"
	ClaimName    = "name"
	ClaimPicture = "picture"
	ClaimAdmin   = "admin"
)

var errAlgorithm = errors.New("only HS256 is accepted")

// AccessToken es la credencial firmada y autocontenida que recibe el cliente.
type AccessToken struct {
	Value     string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Claims    map[string]any
}

// ClaimString devuelve un claim string o "" si no existe.
func (t *AccessToken) ClaimString(key string) string {
	if t == nil {
		return ""
	}
	s, _ := t.Claims[key].(string)
	return s
}

// ClaimBool devuelve un claim bool o false si no existe.
func (t *AccessToken) ClaimBool(key string) bool {
	if t == nil {
		return false
	}
	b, _ := t.Claims[key].(bool)
	return b
}

// CodecConfig configura el Codec.
type CodecConfig struct {
	// SigningKey es la clave HMAC compartida. Obligatoria.
	SigningKey []byte
	// Validity es la ventana entre iat y exp.
	Validity time.Duration
	// Issuer, si no está vacío, se emite como "iss" y se exige al parsear.
	Issuer string
	// Leeway tolera desfase de reloj al comprobar exp. Default 0.
	Leeway time.Duration
	// Now permite fijar el reloj en tests.
	Now func() time.Time
}

// Codec emite y valida access tokens HS256.
// Es inmutable tras NewCodec y seguro para uso concurrente.
type Codec struct {
	key      []byte
	validity time.Duration
	issuer   string
	leeway   time.Duration
	now      func() time.Time
	parser   *jwtv5.Parser
}

// NewCodec construye un Codec validando la configuración.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrEmptySigningKey
	}
	if cfg.Validity < time.Second {
		return nil, ErrInvalidValidity
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	// strict: una sola codificación base64url válida por firma
	opts := []jwtv5.ParserOption{
		jwtv5.WithStrictDecoding(),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(cfg.Leeway),
		jwtv5.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(cfg.Issuer))
	}

	return &Codec{
		key:      key,
		validity: cfg.Validity,
		issuer:   cfg.Issuer,
		leeway:   cfg.Leeway,
		now:      now,
		parser:   jwtv5.NewParser(opts...),
	}, nil
}

// Validity devuelve la ventana de validez configurada.
func (c *Codec) Validity() time.Duration { return c.validity }

// Issue firma un token para u. Los atributos de display viajan en el
// token para que el autenticador no necesite leer la base.
func (c *Codec) Issue(u *repository.User) (*AccessToken, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return nil, ErrMissingSubject
	}

	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.validity)

	// iat/exp como float64: es lo que devuelve el decoder JSON al parsear,
	// así Issue y Parse exponen el mismo mapa.
	claims := jwtv5.MapClaims{
		"sub":      u.ID,
		"iat":      float64(now.Unix()),
		"exp":      float64(exp.Unix()),
		ClaimEmail: u.Email,
		ClaimAdmin: u.Admin,
	}
	if u.FullName != "" {
		claims[ClaimName] = u.FullName
	}
	if u.PictureURL != "" {
		claims[ClaimPicture] = u.PictureURL
	}
	if c.issuer != "" {
		claims["iss"] = c.issuer
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(c.key)
	if err != nil {
		return nil, err
	}

	return &AccessToken{
		Value:     signed,
		Subject:   u.ID,
		IssuedAt:  now,
		ExpiresAt: exp,
		Claims:    copyClaims(claims),
	}, nil
}

// Parse verifica firma, estructura y expiración. Cualquier fallo es un
// *InvalidTokenError con uno de los cuatro Kind.
func (c *Codec) Parse(value string) (*AccessToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, invalid(KindMalformed, errors.New("empty token"))
	}

	claims := jwtv5.MapClaims{}
	_, err := c.parser.ParseWithClaims(value, claims, c.keyfunc)
	if err != nil {
		return nil, c.classify(claims, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return nil, invalid(KindMalformed, errors.New("sub claim missing"))
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, invalid(KindMalformed, errors.New("iat claim missing"))
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, invalid(KindMalformed, errors.New("exp claim missing"))
	}
	if !exp.After(iat.Time) {
		return nil, invalid(KindMalformed, errors.New("exp is not after iat"))
	}

	return &AccessToken{
		Value:     value,
		Subject:   sub,
		IssuedAt:  iat.Time.UTC(),
		ExpiresAt: exp.Time.UTC(),
		Claims:    copyClaims(claims),
	}, nil
}

func (c *Codec) keyfunc(t *jwtv5.Token) (any, error) {
	if t.Method == nil || t.Method.Alg() != jwtv5.SigningMethodHS256.Alg() {
		return nil, errAlgorithm
	}
	return c.key, nil
}

// classify traduce errores de golang-jwt a nuestros cuatro Kind.
// Un exp vencido gana incluso cuando la firma no verifica.
func (c *Codec) classify(claims jwtv5.MapClaims, err error) error {
	switch {
	case errors.Is(err, jwtv5.ErrTokenMalformed):
		return invalid(KindMalformed, err)
	case errors.Is(err, errAlgorithm), errors.Is(err, jwtv5.ErrTokenUnverifiable):
		return invalid(KindUnsupportedAlgorithm, err)
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
		if c.expired(claims) {
			return invalid(KindExpired, err)
		}
		return invalid(KindSignatureInvalid, err)
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return invalid(KindExpired, err)
	default:
		return invalid(KindMalformed, err)
	}
}

func (c *Codec) expired(claims jwtv5.MapClaims) bool {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !c.now().Before(exp.Time.Add(c.leeway))
}

func copyClaims(in jwtv5.MapClaims) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
