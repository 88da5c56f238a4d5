package claims

// MergeValue aplica la política populate-if-missing sobre un campo escalar:
// un valor entrante no vacío siempre pisa, uno vacío nunca borra lo existente.
func MergeValue(existing, incoming string) string {
	if incoming != "" {
		return incoming
	}
	return existing
}

// PriorityTypes son los claims que siempre ganan sobre el valor existente de
// la sesión, incluso si el entrante coincide con otro campo ya poblado.
// Un preferred_username recién emitido por el provider manda.
var PriorityTypes = map[string]bool{
	PreferredUsername: true,
}

// MergeStringSet une dos listas sin duplicados, conservando el orden de la
// existente y agregando los entrantes nuevos al final.
func MergeStringSet(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range incoming {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MergeStringMap aplica populate-if-missing clave por clave.
func MergeStringMap(existing, incoming map[string]string) map[string]string {
	if existing == nil && incoming == nil {
		return nil
	}
	out := make(map[string]string, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		if v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
