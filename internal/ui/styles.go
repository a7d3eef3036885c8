package ui

import "github.com/charmbracelet/lipgloss"

// Matrix color palette
var (
	ColorMatrixGreen  = lipgloss.Color("#00FF41")
	ColorGreen        = lipgloss.Color("#00CC33")
	ColorMidGreen     = lipgloss.Color("#008F11")
	ColorDimGreen     = lipgloss.Color("#004A0A")
	ColorBlack        = lipgloss.Color("#000000")
	ColorDeviceBLE    = lipgloss.Color("#00FFAA")
	ColorDeviceClass  = lipgloss.Color("#33FF66")
	ColorNotify       = lipgloss.Color("#00FFAA")
	ColorBorderBright = lipgloss.Color("#00FF41")
	ColorBorderNorm   = lipgloss.Color("#00AA22")
	ColorError        = lipgloss.Color("#FF3300")
	ColorWarning      = lipgloss.Color("#FFAA00")
)

// Pre-built styles
var (
	StyleMenuBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleMenuLabel = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorGreen).
			Padding(0, 1)

	StyleStatusScanning = lipgloss.NewStyle().
				Foreground(ColorMatrixGreen).
				Bold(true)

	StyleStatusPaused = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Bold(true)

	StyleStatusError = lipgloss.NewStyle().
				Foreground(ColorError).
				Bold(true)

	StylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderNorm)

	StylePanelActive = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderBright)

	StylePanelTitle = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleDeviceName = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleDeviceMAC = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleDeviceRSSI = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleDeviceDist = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleDeviceTypeBLE = lipgloss.NewStyle().
				Foreground(ColorDeviceBLE)

	StyleDeviceTypeClassic = lipgloss.NewStyle().
				Foreground(ColorDeviceClass)

	StyleUUID = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleAttrName = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StylePropTag = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleNotifyMark = lipgloss.NewStyle().
			Foreground(ColorNotify).
			Bold(true)

	StyleValueHex = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleValueASCII = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleValueError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleSeparator = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorDimGreen)

	StyleOverlayBox = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorError).
			Padding(1, 2)

	StyleOverlayTitle = lipgloss.NewStyle().
				Foreground(ColorError).
				Bold(true)

	StyleHelpBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorderBright).
			Padding(1, 2)
)
