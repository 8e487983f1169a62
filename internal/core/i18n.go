package core

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// Supported UI languages.
const (
	LangEnglish = "en"
	LangSpanish = "es"
)

var languageMatcher = language.NewMatcher([]language.Tag{language.English, language.Spanish})

// NormalizeLanguage maps any locale string to "en" or "es".
func NormalizeLanguage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return LangEnglish
	}
	// POSIX locales look like es_ES.UTF-8.
	if idx := strings.IndexAny(value, ".@"); idx >= 0 {
		value = value[:idx]
	}
	value = strings.ReplaceAll(value, "_", "-")
	_, idx := language.MatchStrings(languageMatcher, value)
	if idx == 1 {
		return LangSpanish
	}
	return LangEnglish
}

// DetectLanguage picks the UI language from the environment.
func DetectLanguage() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if value := os.Getenv(key); value != "" && value != "C" && value != "POSIX" {
			return NormalizeLanguage(value)
		}
	}
	return LangEnglish
}

// Strings is the translated UI copy for one language.
type Strings struct {
	Title               string
	Placeholder         string
	NoMessages          string
	You                 string
	Support             string
	EmptyMessage        string
	MessageSent         string
	SendError           string
	NewMessage          string
	Downloaded          string
	SupportChat         string
	PublicChat          string
	MaintenanceEnabled  string
	MaintenanceDisabled string
	MaintenanceTitle    string
	MaintenanceBody     string
	FileSent            string
	FileSendError       string
	FileTooLarge        string
	InvalidCredentials  string
	UsernameRequired    string
	PasswordRequired    string
	LoggedIn            string
	LoggedOut           string
	Settings            string
	Theme               string
	Sound               string
	Language            string
	On                  string
	Off                 string
}

var translations = map[string]Strings{
	LangEnglish: {
		Title:               "Support Chat",
		Placeholder:         "Type your message here...",
		NoMessages:          "No messages yet. Start the conversation!",
		You:                 "You",
		Support:             "Support",
		EmptyMessage:        "Please write a message before sending",
		MessageSent:         "Message sent successfully!",
		SendError:           "Failed to send message. Please try again.",
		NewMessage:          "New message received",
		Downloaded:          "Chat downloaded successfully!",
		SupportChat:         "Support",
		PublicChat:          "Vlizz Chat",
		MaintenanceEnabled:  "Maintenance mode enabled",
		MaintenanceDisabled: "Maintenance mode disabled",
		MaintenanceTitle:    "Under maintenance",
		MaintenanceBody:     "We are performing maintenance. This screen will refresh automatically when we are back.",
		FileSent:            "File sent successfully!",
		FileSendError:       "Failed to send file",
		FileTooLarge:        "File too large (max 10MB)",
		InvalidCredentials:  "Invalid credentials",
		UsernameRequired:    "Please enter your username",
		PasswordRequired:    "Please enter your password",
		LoggedIn:            "Logged in as",
		LoggedOut:           "Logged out",
		Settings:            "Settings",
		Theme:               "Theme",
		Sound:               "Sound",
		Language:            "Language",
		On:                  "on",
		Off:                 "off",
	},
	LangSpanish: {
		Title:               "Chat de Soporte",
		Placeholder:         "Escribe tu mensaje aquí...",
		NoMessages:          "No hay mensajes aún. ¡Inicia la conversación!",
		You:                 "Tú",
		Support:             "Soporte",
		EmptyMessage:        "Por favor escribe un mensaje antes de enviar",
		MessageSent:         "¡Mensaje enviado exitosamente!",
		SendError:           "Error al enviar mensaje. Por favor intenta de nuevo.",
		NewMessage:          "Nuevo mensaje recibido",
		Downloaded:          "¡Chat descargado exitosamente!",
		SupportChat:         "Soporte",
		PublicChat:          "Community",
		MaintenanceEnabled:  "Modo mantenimiento activado",
		MaintenanceDisabled: "Modo mantenimiento desactivado",
		MaintenanceTitle:    "En mantenimiento",
		MaintenanceBody:     "Estamos realizando mantenimiento. Esta pantalla se actualizará automáticamente cuando volvamos.",
		FileSent:            "¡Archivo enviado exitosamente!",
		FileSendError:       "Error al enviar archivo",
		FileTooLarge:        "Archivo muy grande (máx 10MB)",
		InvalidCredentials:  "Credenciales inválidas",
		UsernameRequired:    "Por favor ingresa tu usuario",
		PasswordRequired:    "Por favor ingresa tu contraseña",
		LoggedIn:            "Sesión iniciada como",
		LoggedOut:           "Sesión cerrada",
		Settings:            "Ajustes",
		Theme:               "Tema",
		Sound:               "Sonido",
		Language:            "Idioma",
		On:                  "activado",
		Off:                 "desactivado",
	},
}

// T returns the UI strings for lang, falling back to English.
func T(lang string) Strings {
	if s, ok := translations[NormalizeLanguage(lang)]; ok {
		return s
	}
	return translations[LangEnglish]
}

// ChannelTitle returns the tab title for a channel.
func ChannelTitle(lang string, public bool) string {
	s := T(lang)
	if public {
		return s.PublicChat
	}
	return s.SupportChat
}
