package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// ProfileField mapea una clave del JSON de userinfo a un tipo de claim.
// Tabla data-driven, igual que el mapeo user-field → claim del lado local.
type ProfileField struct {
	JSONKey   string
	ClaimType string
}

// ProfileFetcher obtiene la identidad desde el userinfo endpoint, para
// providers sin id_token (GitHub, Facebook).
type ProfileFetcher struct {
	Provider string
	URL      string
	Fields   []ProfileField
	HTTP     *http.Client
}

func NewProfileFetcher(provider, url string, fields []ProfileField, hc *http.Client) *ProfileFetcher {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &ProfileFetcher{Provider: provider, URL: url, Fields: fields, HTTP: hc}
}

// Fetch descarga el perfil con el access token y lo proyecta a claims según
// la tabla de campos. Valores numéricos (ej: el id de GitHub) se stringifican.
func (p *ProfileFetcher) Fetch(ctx context.Context, accessToken string) (claims.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Code: "userinfo_rejected"}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Code: "malformed_response"}
	}

	cs := claims.Set{}
	for _, f := range p.Fields {
		cs = cs.Add(f.ClaimType, stringify(raw[f.JSONKey]))
	}

	logger.From(ctx).Debug("userinfo fetched",
		logger.Component("oauth2.profile"),
		logger.Provider(p.Provider),
		logger.ExternalUserID(cs.First(claims.Subject)),
	)
	return cs, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		// JSON numbers llegan como float64; los ids son enteros.
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
