package filter

import "math"

// Coefficients коэффициенты полосового фильтра для конкретной частоты дискретизации
type Coefficients struct {
	Rate       float64
	B, A       []float64
	GroupDelay int
}

// band симметричный числитель Баттерворта c·(1 - z^-2)^N
func band(c float64, order int) []float64 {
	switch order {
	case 2:
		return []float64{c, 0, -2 * c, 0, c}
	default:
		return []float64{c, 0, -3 * c, 0, 3 * c, 0, -c}
	}
}

// qrsBandTable полосовой Баттерворт 3-го порядка 8–20 Гц
var qrsBandTable = []Coefficients{
	{Rate: 128, B: band(0.015348632902639372, 3), GroupDelay: 7,
		A: []float64{1, -3.9064377073935579, 7.0122669129777053, -7.3217938823662632, 4.6957114227306711, -1.7506217352811331, 0.30211018487156865}},
	{Rate: 250, B: band(0.0025918862424476616, 3), GroupDelay: 13,
		A: []float64{1, -5.126361142485715, 11.20132410992038, -13.347582589043716, 9.1485246483299285, -3.420931109786828, 0.54578683446377962}},
	{Rate: 256, B: band(0.0024286152834566187, 3), GroupDelay: 14,
		A: []float64{1, -5.152300858774792, 11.30268449080199, -13.507770758779026, 9.2757635957924407, -3.4713597143963106, 0.55364790048892865}},
	{Rate: 360, B: band(0.00094131374699328216, 3), GroupDelay: 19,
		A: []float64{1, -5.4458894430328231, 12.491242232300849, -15.445093913348305, 10.858290117188025, -4.1157299444230535, 0.65727470210265682}},
	{Rate: 500, B: band(0.00037068337429802987, 3), GroupDelay: 27,
		A: []float64{1, -5.6267106792892791, 13.265082625849917, -16.77151002446319, 11.99423498475276, -4.6005096178831115, 0.73942657201607631}},
	{Rate: 1000, B: band(4.9757435768686426e-05, 3), GroupDelay: 53,
		A: []float64{1, -5.8307665698206472, 14.185404142052867, -18.431418729299711, 13.489689338789649, -5.2728999261645937, 0.85999197812046591}},
}

// panTompkinsBandTable полосовой Баттерворт 2-го порядка 5–15 Гц
var panTompkinsBandTable = []Coefficients{
	{Rate: 128, B: band(0.044279708659141201, 2), GroupDelay: 6,
		A: []float64{1, -3.0210624760372111, 3.6562523393206203, -2.1119058488681892, 0.50000619213182917}},
	{Rate: 250, B: band(0.013359200027856503, 2), GroupDelay: 11,
		A: []float64{1, -3.5609474528307348, 4.8388639736858821, -2.9769296153842246, 0.7008967811884026}},
	{Rate: 256, B: band(0.012787342571479923, 2), GroupDelay: 11,
		A: []float64{1, -3.5729237610864946, 4.8675901032706879, -2.9997032491394524, 0.7067570632151905}},
	{Rate: 360, B: band(0.0067654132571125462, 2), GroupDelay: 16,
		A: []float64{1, -3.7113064502335651, 5.2093554337876178, -3.2788675343603604, 0.7812804814321519}},
	{Rate: 500, B: band(0.0036216815149286417, 2), GroupDelay: 22,
		A: []float64{1, -3.8000503652844579, 5.4393397877934095, -3.476342647181482, 0.83718165125602306}},
	{Rate: 1000, B: band(0.00094469184384015053, 2), GroupDelay: 45,
		A: []float64{1, -3.9054062956957116, 5.7260485805959744, -3.7356097324807189, 0.91497583480143407}},
}

// nearest выбирает таблицу с ближайшей частотой дискретизации, без интерполяции
func nearest(table []Coefficients, fs float64) Coefficients {
	best := table[0]
	for _, c := range table[1:] {
		if math.Abs(c.Rate-fs) < math.Abs(best.Rate-fs) {
			best = c
		}
	}
	return best
}

// QRSBand возвращает коэффициенты полосы 8–20 Гц для ближайшей частоты
func QRSBand(fs float64) Coefficients {
	return nearest(qrsBandTable, fs)
}

// PanTompkinsBand возвращает коэффициенты полосы 5–15 Гц для ближайшей частоты
func PanTompkinsBand(fs float64) Coefficients {
	return nearest(panTompkinsBandTable, fs)
}

// NewBandpass создает фильтр по табличным коэффициентам
func NewBandpass(c Coefficients) *Digital {
	f, _ := NewDigital(c.B, c.A, c.GroupDelay)
	return f
}
