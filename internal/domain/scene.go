package domain

// Scene is the ambient presentation category for the current conditions.
type Scene string

const (
	SceneSunny  Scene = "sunny"
	SceneCloudy Scene = "cloudy"
	SceneMisty  Scene = "misty"
	SceneRainy  Scene = "rainy"
	SceneSnowy  Scene = "snowy"
	SceneStormy Scene = "stormy"
	SceneDay    Scene = "day"
	SceneNight  Scene = "night"
)

// WeatherAPI condition codes grouped by scene.
var sceneByCode = map[int]Scene{
	1000: SceneSunny,

	1003: SceneCloudy, 1006: SceneCloudy, 1009: SceneCloudy,

	1030: SceneMisty, 1135: SceneMisty, 1147: SceneMisty,

	1063: SceneRainy, 1180: SceneRainy, 1183: SceneRainy, 1186: SceneRainy,
	1189: SceneRainy, 1192: SceneRainy, 1195: SceneRainy, 1240: SceneRainy,
	1243: SceneRainy, 1246: SceneRainy,

	1066: SceneSnowy, 1210: SceneSnowy, 1213: SceneSnowy, 1216: SceneSnowy,
	1219: SceneSnowy, 1222: SceneSnowy, 1225: SceneSnowy,

	1087: SceneStormy, 1273: SceneStormy, 1276: SceneStormy,
}

// DeriveScene maps a condition code and daylight flag to a Scene.
func DeriveScene(code int, isDay bool) Scene {
	if !isDay {
		return SceneNight
	}
	if s, ok := sceneByCode[code]; ok {
		return s
	}
	return SceneDay
}

// Background is the looping clip shown behind the feature views.
func (s Scene) Background() string {
	if s == "" {
		return string(SceneDay) + ".mp4"
	}
	return string(s) + ".mp4"
}
