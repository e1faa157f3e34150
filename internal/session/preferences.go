package session

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hitoshi/eventease/internal/model"
)

// normalizePreferenceKey はキーを小文字化し、区切り文字を除去する。
// "page-size", "PageSize", "page_size" はすべて "pagesize" になる。
func normalizePreferenceKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("-", "", "_", "").Replace(key)
}

// preferenceSetter はキーに対応する設定関数を返す。
// 返す関数は設定を反映し、変更前の値を返す。値の変換に失敗した場合はValidationErrorを返す。
func preferenceSetter(key string, value any) (func(*model.UserPreferences) any, error) {
	switch normalizePreferenceKey(key) {
	case "theme":
		theme, err := coerceString(value, "light")
		if err != nil {
			return nil, model.NewValidationError([]string{"Theme must be a string."})
		}
		return func(p *model.UserPreferences) any {
			old := p.Theme
			p.Theme = theme
			return old
		}, nil

	case "language":
		lang, err := coerceString(value, "en")
		if err != nil {
			return nil, model.NewValidationError([]string{"Language must be a string."})
		}
		return func(p *model.UserPreferences) any {
			old := p.Language
			p.Language = lang
			return old
		}, nil

	case "enablenotifications", "notificationsenabled":
		enabled, err := coerceBool(value)
		if err != nil {
			return nil, model.NewValidationError([]string{"Notifications setting must be true or false."})
		}
		return func(p *model.UserPreferences) any {
			old := p.EnableNotifications
			p.EnableNotifications = enabled
			return old
		}, nil

	case "pagesize":
		size, err := coerceInt(value)
		if err != nil || size <= 0 {
			return nil, model.NewValidationError([]string{"Page size must be a positive number."})
		}
		return func(p *model.UserPreferences) any {
			old := p.PageSize
			p.PageSize = size
			return old
		}, nil

	default:
		if _, err := json.Marshal(value); err != nil {
			return nil, model.NewValidationError([]string{"Preference value must be JSON-serializable."})
		}
		return func(p *model.UserPreferences) any {
			if p.CustomSettings == nil {
				p.CustomSettings = map[string]any{}
			}
			old, ok := p.CustomSettings[key]
			if !ok {
				old = nil
			}
			p.CustomSettings[key] = value
			return old
		}, nil
	}
}

func coerceString(value any, def string) (string, error) {
	switch v := value.(type) {
	case nil:
		return def, nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}

func coerceBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case json.Number:
		f, err := v.Float64()
		return f != 0, err
	default:
		return false, fmt.Errorf("unsupported type %T", value)
	}
}

func coerceInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}
