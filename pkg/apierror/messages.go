package apierror

import (
	"strings"

	"golang.org/x/text/language"
)

var supported = []language.Tag{language.English, language.French}

var matcher = language.NewMatcher(supported)

var catalog = map[language.Tag]map[string]string{
	language.English: {
		"auth.user_not_found": "User not found. Please check your credentials.",
		"auth.wrong_password": "Incorrect password. Please try again.",
		string(KindAuthentication): "Authentication problem. Please sign in again.",
		string(KindNetwork):        "Connection problem. Please check your internet connection and try again.",
		string(KindRemoteStore):    "Temporary problem with our servers. Please try again in a few moments.",
		string(KindCache):          "Temporary cache problem. Data will be reloaded.",
		string(KindValidation):     "Invalid data. Please check the information entered.",
		string(KindUnknown):        "An unexpected error occurred. Please try again.",
	},
	language.French: {
		"auth.user_not_found": "Utilisateur non trouvé. Veuillez vérifier vos identifiants.",
		"auth.wrong_password": "Mot de passe incorrect. Veuillez réessayer.",
		string(KindAuthentication): "Problème d'authentification. Veuillez vous reconnecter.",
		string(KindNetwork):        "Problème de connexion. Veuillez vérifier votre connexion internet et réessayer.",
		string(KindRemoteStore):    "Problème temporaire avec nos serveurs. Veuillez réessayer dans quelques instants.",
		string(KindCache):          "Problème temporaire avec le cache. Les données vont être rechargées.",
		string(KindValidation):     "Données non valides. Veuillez vérifier les informations saisies.",
		string(KindUnknown):        "Une erreur inattendue s'est produite. Veuillez réessayer.",
	},
}

// UserMessage returns the human-readable message for kind in the best
// language for acceptLanguage. Authentication errors get a more specific
// message when the technical message identifies the cause.
func UserMessage(kind Kind, technical, acceptLanguage string) string {
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	_, idx, _ := matcher.Match(tags...)
	messages := catalog[supported[idx]]

	key := string(kind)
	if kind == KindAuthentication {
		msg := strings.ToLower(technical)
		switch {
		case strings.Contains(msg, "user-not-found"), strings.Contains(msg, "user not found"):
			key = "auth.user_not_found"
		case strings.Contains(msg, "wrong-password"):
			key = "auth.wrong_password"
		}
	}

	if m, ok := messages[key]; ok {
		return m
	}
	return messages[string(KindUnknown)]
}

// Localize returns the user message for e in the requested language.
func (e *Error) Localize(acceptLanguage string) string {
	return UserMessage(e.kind(), e.Message, acceptLanguage)
}
