package utils

import "fmt"

// DefaultLocale is used when a key is missing in the requested locale.
const DefaultLocale = "fr"

// SupportedLocales lists the catalogs below.
var SupportedLocales = []string{"fr", "en"}

var translations = map[string]map[string]string{
	"fr": {
		"health.ok": "ok",

		"precheck.code_incorrect":    "Code incorrect",
		"precheck.store_unknown":     "Boutique inconnue",
		"precheck.store_required":    "Choisissez une boutique",
		"precheck.code_required":     "Saisissez le code de la boutique",
		"precheck.verifier_required": "Indiquez le nom du vérificateur",
		"precheck.date_required":     "Indiquez la date de vérification",
		"precheck.date_invalid":      "Date invalide",
		"precheck.duplicate":         "Une vérification existe déjà pour cette boutique à cette date",
		"history.none":               "Aucune vérification précédente",
		"history.unavailable":        "Historique indisponible",

		"summary.ok":     "Tous les points sont conformes.",
		"summary.issues": "Des non-conformités ont été détectées.",

		"status.pending":       "À faire",
		"status.compliant":     "OK",
		"status.non_compliant": "Non conf.",

		"audit.duplicate":  "Une vérification existe déjà pour cette boutique à cette date",
		"store.duplicate":  "Une boutique portant ce nom existe déjà",
		"items.readonly":   "La liste des points est figée dans cette installation",
		"auth.required":    "Connexion administrateur requise",
		"auth.invalid":     "Identifiants invalides",
		"auth.denied":      "Accès refusé (pas admin)",
		"error.transition": "Action impossible à cette étape",
		"error.busy":       "Une action est déjà en cours",
		"error.validation": "Formulaire incomplet",
		"error.remote":     "Service de données indisponible",

		"error.invalid":           "Requête invalide",
		"error.unauthorized":      "Authentification requise",
		"error.forbidden":         "Accès refusé",
		"error.not_found":         "Introuvable",
		"error.conflict":          "Conflit",
		"error.too_many_requests": "Trop de requêtes",
		"error.unavailable":       "Service indisponible",
		"error.internal":          "Erreur interne",
		"error.session_not_found": "Session introuvable ou expirée",

		"completion": "%d%% complété",
	},
	"en": {
		"health.ok": "ok",

		"precheck.code_incorrect":    "Incorrect code",
		"precheck.store_unknown":     "Unknown store",
		"precheck.store_required":    "Choose a store",
		"precheck.code_required":     "Enter the store code",
		"precheck.verifier_required": "Enter the verifier name",
		"precheck.date_required":     "Enter the audit date",
		"precheck.date_invalid":      "Invalid date",
		"precheck.duplicate":         "An audit already exists for this store on this date",
		"history.none":               "No previous audit",
		"history.unavailable":        "History unavailable",

		"summary.ok":     "All points are compliant.",
		"summary.issues": "Issues detected.",

		"status.pending":       "To do",
		"status.compliant":     "OK",
		"status.non_compliant": "Non-compliant",

		"audit.duplicate":  "An audit already exists for this store on this date",
		"store.duplicate":  "A store with this name already exists",
		"items.readonly":   "The checklist is fixed in this installation",
		"auth.required":    "Administrator sign-in required",
		"auth.invalid":     "Invalid credentials",
		"auth.denied":      "Access denied (not admin)",
		"error.transition": "Action not available at this step",
		"error.busy":       "Another action is in progress",
		"error.validation": "Form incomplete",
		"error.remote":     "Data service unavailable",

		"error.invalid":           "Invalid request",
		"error.unauthorized":      "Authentication required",
		"error.forbidden":         "Forbidden",
		"error.not_found":         "Not found",
		"error.conflict":          "Conflict",
		"error.too_many_requests": "Too many requests",
		"error.unavailable":       "Service unavailable",
		"error.internal":          "Internal error",
		"error.session_not_found": "Session not found or expired",

		"completion": "%d%% complete",
	},
}

// T returns the translated string for key in locale; falls back to French,
// then to the key itself.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations[DefaultLocale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}

// Tf is T followed by fmt.Sprintf.
func Tf(locale, key string, args ...any) string {
	return fmt.Sprintf(T(locale, key), args...)
}

// HasKey reports whether key exists in every catalog.
func HasKey(key string) bool {
	for _, m := range translations {
		if _, ok := m[key]; !ok {
			return false
		}
	}
	return true
}
